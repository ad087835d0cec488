package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maraichr/datasetops/internal/catalog"
	"github.com/maraichr/datasetops/internal/store/postgres"
	"github.com/maraichr/datasetops/pkg/apierr"
)

type Store struct {
	*postgres.Queries
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Queries: postgres.New(pool),
		pool:    pool,
	}
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) WithTx(ctx context.Context, fn func(*postgres.Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Exists implements catalog.Catalog.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := s.DatasetExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("dataset exists %s: %w", name, err)
	}
	return ok, nil
}

// Describe implements catalog.Catalog.
func (s *Store) Describe(ctx context.Context, name string) (catalog.Dataset, error) {
	d, err := s.GetDataset(ctx, name)
	if err != nil {
		if apierr.IsNotFound(err) {
			return catalog.Dataset{}, catalog.ErrNotFound
		}
		return catalog.Dataset{}, fmt.Errorf("get dataset %s: %w", name, err)
	}
	return toCatalog(d), nil
}

// List implements catalog.Catalog.
func (s *Store) List(ctx context.Context) ([]catalog.Dataset, error) {
	rows, err := s.ListDatasets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	out := make([]catalog.Dataset, 0, len(rows))
	for _, d := range rows {
		out = append(out, toCatalog(d))
	}
	return out, nil
}

// TagCounts implements catalog.Catalog.
func (s *Store) TagCounts(ctx context.Context, name string) (map[string]int64, error) {
	counts, err := s.CountSampleTags(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("count sample tags %s: %w", name, err)
	}
	return counts, nil
}

func toCatalog(d postgres.Dataset) catalog.Dataset {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return catalog.Dataset{
		Name:       d.Name,
		MediaType:  d.MediaType,
		NumSamples: int(d.NumSamples),
		Persistent: d.Persistent,
		Tags:       tags,
		Info:       d.InfoMap(),
	}
}

var _ catalog.Catalog = (*Store)(nil)
