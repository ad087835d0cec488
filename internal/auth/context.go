package auth

import (
	"context"

	sdkauth "github.com/modelcontextprotocol/go-sdk/auth"
)

// Scopes and roles recognised on datasetops tokens.
const (
	ScopeRead  = "datasetops:read"
	ScopeWrite = "datasetops:write"

	RoleAdmin  = "datasetops_admin"
	RoleReader = "datasetops_reader"
)

type ctxKey struct{}

// Principal represents an authenticated identity extracted from a JWT.
type Principal struct {
	Sub      string          `json:"sub"`
	Scopes   map[string]bool `json:"scopes"`
	Roles    map[string]bool `json:"roles"`
	ClientID string          `json:"client_id"`
	Issuer   string          `json:"issuer"`
	Email    string          `json:"email"`
}

// WithPrincipal stores a Principal in the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom extracts the Principal from the context. Requests that came
// through the MCP bearer-token middleware carry it in the SDK token info.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	if p, ok := ctx.Value(ctxKey{}).(*Principal); ok {
		return p, true
	}
	if info := sdkauth.TokenInfoFromContext(ctx); info != nil {
		p, ok := info.Extra["principal"].(*Principal)
		return p, ok
	}
	return nil, false
}

// HasScope returns true if the principal has the given scope.
func (p *Principal) HasScope(s string) bool {
	return p.Scopes[s]
}

// HasAnyScope returns true if the principal has any of the given scopes.
func (p *Principal) HasAnyScope(scopes ...string) bool {
	for _, s := range scopes {
		if p.Scopes[s] {
			return true
		}
	}
	return false
}

// IsAdmin returns true if the principal has the datasetops_admin role.
func (p *Principal) IsAdmin() bool {
	return p.Roles[RoleAdmin]
}

// HasRole returns true if the principal has the given role.
func (p *Principal) HasRole(r string) bool {
	return p.Roles[r]
}
