package delegation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/maraichr/datasetops/internal/operator"
)

const (
	StreamName = "datasetops:delegated"
	GroupName  = "datasetops-workers"

	indexKey     = "datasetops:delegated:index"
	recordPrefix = "datasetops:delegated:op:"
	listPageSize = 100
)

func recordKey(id uuid.UUID) string { return recordPrefix + id.String() }

// streamMessage is the payload placed on the stream. The full record lives
// under its own key so state changes never touch the stream.
type streamMessage struct {
	OperationID uuid.UUID `json:"operation_id"`
}

// ValkeyQueue stores operation records as JSON strings, indexes them in a
// sorted set by queue time, and announces new work on a stream.
type ValkeyQueue struct {
	client valkey.Client
	stream string
	logger *slog.Logger
	now    func() time.Time
}

func NewValkeyQueue(client valkey.Client, logger *slog.Logger) *ValkeyQueue {
	return &ValkeyQueue{
		client: client,
		stream: StreamName,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (q *ValkeyQueue) Submit(ctx context.Context, sub Submission) (*Operation, error) {
	op := NewOperation(sub, q.now())
	data, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("marshal operation: %w", err)
	}
	msg, err := json.Marshal(streamMessage{OperationID: op.ID})
	if err != nil {
		return nil, fmt.Errorf("marshal stream message: %w", err)
	}

	resps := q.client.DoMulti(ctx,
		q.client.B().Multi().Build(),
		q.client.B().Set().Key(recordKey(op.ID)).Value(string(data)).Build(),
		q.client.B().Zadd().Key(indexKey).ScoreMember().
			ScoreMember(float64(op.QueuedAt.UnixMilli()), op.ID.String()).Build(),
		q.client.B().Xadd().Key(q.stream).Id("*").
			FieldValue().FieldValue("data", string(msg)).Build(),
		q.client.B().Exec().Build(),
	)
	if err := execError(resps); err != nil {
		// EXEC does not roll back commands that already ran.
		q.discard(ctx, op.ID)
		return nil, fmt.Errorf("queue operation: %w", err)
	}

	q.logger.Info("delegated operation queued",
		slog.String("operation_id", op.ID.String()),
		slog.String("operator", op.Operator),
		slog.Int("stages", len(op.Pipeline)))
	return op, nil
}

// execError returns the first error of a MULTI ... EXEC exchange, including
// errors of individual commands inside the EXEC reply.
func execError(resps []valkey.ValkeyResult) error {
	for _, resp := range resps {
		if err := resp.Error(); err != nil {
			return err
		}
	}
	replies, err := resps[len(resps)-1].ToArray()
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	for _, r := range replies {
		if err := r.Error(); err != nil {
			return err
		}
	}
	return nil
}

// discard removes a record that was never announced on the stream.
func (q *ValkeyQueue) discard(ctx context.Context, id uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	for _, resp := range q.client.DoMulti(ctx,
		q.client.B().Del().Key(recordKey(id)).Build(),
		q.client.B().Zrem().Key(indexKey).Member(id.String()).Build(),
	) {
		if err := resp.Error(); err != nil {
			q.logger.Warn("discard unqueued operation",
				slog.String("operation_id", id.String()),
				slog.String("error", err.Error()))
		}
	}
}

func (q *ValkeyQueue) Get(ctx context.Context, id uuid.UUID) (*Operation, error) {
	s, err := q.client.Do(ctx, q.client.B().Get().Key(recordKey(id)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get operation: %w", err)
	}
	return decodeOperation(s)
}

func (q *ValkeyQueue) List(ctx context.Context, f Filter) ([]*Operation, error) {
	limit := f.limit()
	out := make([]*Operation, 0, limit)

	for start := 0; len(out) < limit; start += listPageSize {
		ids, err := q.client.Do(ctx, q.client.B().Zrange().Key(indexKey).
			Min(strconv.Itoa(start)).Max(strconv.Itoa(start+listPageSize-1)).Rev().Build()).AsStrSlice()
		if err != nil {
			return nil, fmt.Errorf("list operation ids: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = recordPrefix + id
		}
		msgs, err := q.client.Do(ctx, q.client.B().Mget().Key(keys...).Build()).ToArray()
		if err != nil {
			return nil, fmt.Errorf("load operations: %w", err)
		}
		for _, m := range msgs {
			s, err := m.ToString()
			if err != nil {
				// expired or deleted record still in the index
				continue
			}
			op, err := decodeOperation(s)
			if err != nil {
				q.logger.Warn("skipping unreadable operation record", slog.String("error", err.Error()))
				continue
			}
			if f.Match(op) {
				out = append(out, op)
				if len(out) == limit {
					break
				}
			}
		}
		if len(ids) < listPageSize {
			break
		}
	}
	return out, nil
}

func (q *ValkeyQueue) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return q.update(ctx, id, func(op *Operation) {
		Transition(op, RunStateRunning, q.now())
	})
}

func (q *ValkeyQueue) SetProgress(ctx context.Context, id uuid.UUID, p operator.Progress) error {
	return q.update(ctx, id, func(op *Operation) {
		op.Progress = &p
	})
}

func (q *ValkeyQueue) MarkCompleted(ctx context.Context, id uuid.UUID, result any) error {
	return q.update(ctx, id, func(op *Operation) {
		Transition(op, RunStateCompleted, q.now())
		op.Result = result
	})
}

func (q *ValkeyQueue) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	return q.update(ctx, id, func(op *Operation) {
		Transition(op, RunStateFailed, q.now())
		if cause != nil {
			op.Error = cause.Error()
		}
	})
}

// update is a read-modify-write of one record. Each operation is handled by
// a single consumer, so records are not written concurrently.
func (q *ValkeyQueue) update(ctx context.Context, id uuid.UUID, fn func(*Operation)) error {
	op, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	fn(op)
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	if err := q.client.Do(ctx, q.client.B().Set().Key(recordKey(id)).Value(string(data)).Build()).Error(); err != nil {
		return fmt.Errorf("update operation: %w", err)
	}
	return nil
}

func decodeOperation(s string) (*Operation, error) {
	var op Operation
	if err := json.Unmarshal([]byte(s), &op); err != nil {
		return nil, fmt.Errorf("unmarshal operation: %w", err)
	}
	return &op, nil
}

var _ Queue = (*ValkeyQueue)(nil)
