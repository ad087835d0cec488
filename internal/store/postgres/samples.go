package postgres

// Sample queries used by the builtin operators. A nil or empty ids slice
// targets every sample in the dataset.

import (
	"context"

	"github.com/google/uuid"
)

type Sample struct {
	ID          uuid.UUID
	DatasetName string
	Filepath    string
	Tags        []string
	Metadata    []byte
}

func (q *Queries) CountSamples(ctx context.Context, dataset string, ids []uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx,
		`SELECT count(*) FROM samples
		 WHERE dataset_name = $1 AND (cardinality($2::uuid[]) = 0 OR id = ANY($2::uuid[]))`,
		dataset, nonNil(ids)).Scan(&n)
	return n, err
}

// TagSamples adds tags to the targeted samples and returns how many rows changed.
func (q *Queries) TagSamples(ctx context.Context, dataset string, ids []uuid.UUID, tags []string) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE samples
		 SET tags = ARRAY(SELECT DISTINCT unnest(tags || $3::text[]))
		 WHERE dataset_name = $1
		   AND (cardinality($2::uuid[]) = 0 OR id = ANY($2::uuid[]))
		   AND NOT (tags @> $3::text[])`,
		dataset, nonNil(ids), tags)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UntagSamples removes tags from the targeted samples and returns how many rows changed.
func (q *Queries) UntagSamples(ctx context.Context, dataset string, ids []uuid.UUID, tags []string) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE samples
		 SET tags = ARRAY(SELECT t FROM unnest(tags) AS t WHERE NOT (t = ANY($3::text[])))
		 WHERE dataset_name = $1
		   AND (cardinality($2::uuid[]) = 0 OR id = ANY($2::uuid[]))
		   AND tags && $3::text[]`,
		dataset, nonNil(ids), tags)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListSamples pages through the targeted samples ordered by id, starting after the given id.
func (q *Queries) ListSamples(ctx context.Context, dataset string, ids []uuid.UUID, after uuid.UUID, limit int32) ([]Sample, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, dataset_name, filepath, tags, metadata FROM samples
		 WHERE dataset_name = $1
		   AND (cardinality($2::uuid[]) = 0 OR id = ANY($2::uuid[]))
		   AND id > $3
		 ORDER BY id
		 LIMIT $4`,
		dataset, nonNil(ids), after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.ID, &s.DatasetName, &s.Filepath, &s.Tags, &s.Metadata); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// CountSampleTags returns how many samples of the dataset carry each tag.
func (q *Queries) CountSampleTags(ctx context.Context, dataset string) (map[string]int64, error) {
	rows, err := q.db.Query(ctx,
		`SELECT t, count(*) FROM samples, unnest(tags) AS t
		 WHERE dataset_name = $1
		 GROUP BY t`,
		dataset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			tag string
			n   int64
		)
		if err := rows.Scan(&tag, &n); err != nil {
			return nil, err
		}
		counts[tag] = n
	}
	return counts, rows.Err()
}

type InsertSampleParams struct {
	DatasetName string
	Filepath    string
	Tags        []string
}

func (q *Queries) InsertSample(ctx context.Context, arg InsertSampleParams) (uuid.UUID, error) {
	if arg.Tags == nil {
		arg.Tags = []string{}
	}
	var id uuid.UUID
	err := q.db.QueryRow(ctx,
		`INSERT INTO samples (dataset_name, filepath, tags) VALUES ($1, $2, $3) RETURNING id`,
		arg.DatasetName, arg.Filepath, arg.Tags).Scan(&id)
	return id, err
}

func nonNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
