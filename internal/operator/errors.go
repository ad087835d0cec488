package operator

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrMissingDependency marks failures caused by an uninstalled external package.
var ErrMissingDependency = errors.New("missing dependency")

// DependencyError is the structured form of a missing-dependency failure.
type DependencyError struct {
	Package     string
	InstallHint string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("operator requires that '%s' is installed", e.Package)
}

func (e *DependencyError) Unwrap() error { return ErrMissingDependency }

// packagePattern matches messages such as "requires that 'torch' is installed".
var packagePattern = regexp.MustCompile(`requires that ['"]([^'"]+)['"] is installed`)

// MissingDependency reports whether err is a missing-dependency failure and,
// if so, which package is missing. A structured DependencyError wins;
// otherwise the package is scraped from the error text. Errors that only
// wrap ErrMissingDependency report the package as "unknown".
func MissingDependency(err error) (pkg, hint string, ok bool) {
	if err == nil {
		return "", "", false
	}
	var de *DependencyError
	if errors.As(err, &de) {
		return de.Package, de.InstallHint, true
	}
	if m := packagePattern.FindStringSubmatch(err.Error()); m != nil {
		return m[1], "", true
	}
	if errors.Is(err, ErrMissingDependency) {
		return "unknown", "", true
	}
	return "", "", false
}
