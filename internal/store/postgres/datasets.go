package postgres

import (
	"context"
	"encoding/json"
	"time"
)

type Dataset struct {
	Name       string
	MediaType  string
	Persistent bool
	Tags       []string
	Info       []byte
	CreatedAt  time.Time
	NumSamples int64
}

// InfoMap decodes the info column; malformed JSON yields nil.
func (d Dataset) InfoMap() map[string]any {
	if len(d.Info) == 0 {
		return nil
	}
	var m map[string]any
	if json.Unmarshal(d.Info, &m) != nil {
		return nil
	}
	return m
}

const datasetColumns = `d.name, d.media_type, d.persistent, d.tags, d.info, d.created_at,
	(SELECT count(*) FROM samples s WHERE s.dataset_name = d.name)`

func (q *Queries) DatasetExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM datasets WHERE name = $1)`, name).Scan(&exists)
	return exists, err
}

func (q *Queries) GetDataset(ctx context.Context, name string) (Dataset, error) {
	var d Dataset
	err := q.db.QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM datasets d WHERE d.name = $1`, name).
		Scan(&d.Name, &d.MediaType, &d.Persistent, &d.Tags, &d.Info, &d.CreatedAt, &d.NumSamples)
	return d, err
}

func (q *Queries) ListDatasets(ctx context.Context) ([]Dataset, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+datasetColumns+` FROM datasets d ORDER BY d.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Dataset
	for rows.Next() {
		var d Dataset
		if err := rows.Scan(&d.Name, &d.MediaType, &d.Persistent, &d.Tags, &d.Info, &d.CreatedAt, &d.NumSamples); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

type CreateDatasetParams struct {
	Name       string
	MediaType  string
	Persistent bool
	Tags       []string
}

func (q *Queries) CreateDataset(ctx context.Context, arg CreateDatasetParams) error {
	if arg.Tags == nil {
		arg.Tags = []string{}
	}
	_, err := q.db.Exec(ctx,
		`INSERT INTO datasets (name, media_type, persistent, tags) VALUES ($1, $2, $3, $4)`,
		arg.Name, arg.MediaType, arg.Persistent, arg.Tags)
	return err
}

func (q *Queries) DeleteDataset(ctx context.Context, name string) error {
	_, err := q.db.Exec(ctx, `DELETE FROM datasets WHERE name = $1`, name)
	return err
}
