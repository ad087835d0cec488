// seed registers a dataset from the files under a directory.
// Usage: go run ./cmd/seed -dataset quickstart -dir ./data/quickstart
package main

import (
	"context"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/maraichr/datasetops/internal/config"
	"github.com/maraichr/datasetops/internal/store"
	"github.com/maraichr/datasetops/internal/store/postgres"
)

func main() {
	name := flag.String("dataset", "", "dataset name (required)")
	dir := flag.String("dir", "", "directory to scan for samples (required)")
	media := flag.String("media", "image", "dataset media type")
	ext := flag.String("ext", ".jpg,.jpeg,.png", "comma-separated file extensions to include")
	tags := flag.String("tags", "", "comma-separated dataset tags")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *name == "" || *dir == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	files, err := scan(*dir, splitList(*ext))
	if err != nil {
		logger.Error("failed to scan directory", slog.String("dir", *dir), slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	n, err := store.New(pool).ImportDataset(ctx, store.ImportParams{
		Name:       *name,
		MediaType:  *media,
		Persistent: true,
		Tags:       splitList(*tags),
		Filepaths:  files,
	})
	if err != nil {
		logger.Error("failed to import dataset", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("dataset imported", slog.String("dataset", *name), slog.Int("samples", n))
}

// scan returns the absolute paths of files under root with a matching
// extension, sorted.
func scan(root string, exts []string) ([]string, error) {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !want[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		files = append(files, abs)
		return nil
	})
	sort.Strings(files)
	return files, err
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
