package store

import (
	"context"
	"fmt"

	"github.com/maraichr/datasetops/internal/store/postgres"
)

// ImportParams describe a dataset to create from a list of files.
type ImportParams struct {
	Name       string
	MediaType  string
	Persistent bool
	Tags       []string
	Filepaths  []string
}

// ImportDataset creates the dataset and one sample per file in a single
// transaction and returns the number of samples written.
func (s *Store) ImportDataset(ctx context.Context, p ImportParams) (int, error) {
	err := s.WithTx(ctx, func(q *postgres.Queries) error {
		if err := q.CreateDataset(ctx, postgres.CreateDatasetParams{
			Name:       p.Name,
			MediaType:  p.MediaType,
			Persistent: p.Persistent,
			Tags:       p.Tags,
		}); err != nil {
			return fmt.Errorf("create dataset %s: %w", p.Name, err)
		}
		for _, path := range p.Filepaths {
			if _, err := q.InsertSample(ctx, postgres.InsertSampleParams{
				DatasetName: p.Name,
				Filepath:    path,
			}); err != nil {
				return fmt.Errorf("insert sample %s: %w", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(p.Filepaths), nil
}
