package delegation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/valkey-io/valkey-go"
)

const pendingBatch = 10

// Handler processes one delegated operation.
type Handler func(ctx context.Context, op *Operation) error

// Consumer reads delegated operations from the stream.
type Consumer struct {
	client     valkey.Client
	queue      Queue
	stream     string
	consumerID string
	logger     *slog.Logger
}

func NewConsumer(client valkey.Client, queue Queue, consumerID string, logger *slog.Logger) *Consumer {
	return &Consumer{client: client, queue: queue, stream: StreamName, consumerID: consumerID, logger: logger}
}

// EnsureGroup creates the consumer group if it doesn't exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	resp := c.client.Do(ctx, c.client.B().XgroupCreate().
		Key(c.stream).Group(GroupName).Id("0").Mkstream().Build())
	if err := resp.Error(); err != nil {
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return fmt.Errorf("xgroup create: %w", err)
		}
	}
	return nil
}

// Consume blocks until a message is available, processes it via handler, and ACKs.
// On startup, it first drains any pending messages from a previous crash.
// Messages whose handler failed stay pending and are retried the next time
// the stream is idle.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	retry := !c.drainPending(ctx, handler)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resp := c.client.Do(ctx, c.client.B().Xreadgroup().
			Group(GroupName, c.consumerID).
			Count(1).Block(5000).
			Streams().Key(c.stream).Id(">").
			Build())

		if err := resp.Error(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Timeout is normal for BLOCK reads
			if retry && valkey.IsValkeyNil(err) {
				retry = !c.drainPending(ctx, handler)
			}
			continue
		}

		results, err := resp.AsXRead()
		if err != nil {
			continue
		}

		for _, messages := range results {
			for _, msg := range messages {
				if !c.processMessage(ctx, msg, handler) {
					retry = true
				}
			}
		}
	}
}

// drainPending walks every message delivered to this consumer but not
// ACKed, a page at a time. It reports whether all of them were handled.
func (c *Consumer) drainPending(ctx context.Context, handler Handler) bool {
	start := "0"
	clean := true
	for ctx.Err() == nil {
		resp := c.client.Do(ctx, c.client.B().Xreadgroup().
			Group(GroupName, c.consumerID).
			Count(pendingBatch).
			Streams().Key(c.stream).Id(start).
			Build())

		if err := resp.Error(); err != nil {
			c.logger.Warn("drain pending failed", slog.String("error", err.Error()))
			return false
		}

		results, err := resp.AsXRead()
		if err != nil {
			return false
		}

		n := 0
		for _, messages := range results {
			for _, msg := range messages {
				n++
				start = msg.ID
				c.logger.Info("recovering pending message", slog.String("id", msg.ID))
				if !c.processMessage(ctx, msg, handler) {
					clean = false
				}
			}
		}
		if n == 0 {
			return clean
		}
	}
	return false
}

// processMessage runs handler for one stream entry. It returns false when
// the entry was left pending.
func (c *Consumer) processMessage(ctx context.Context, msg valkey.XRangeEntry, handler Handler) bool {
	dataStr, ok := msg.FieldValues["data"]
	if !ok {
		c.logger.Warn("message missing data field", slog.String("id", msg.ID))
		c.ack(ctx, msg.ID)
		return true
	}

	var m streamMessage
	if err := json.Unmarshal([]byte(dataStr), &m); err != nil {
		c.logger.Error("unmarshal message", slog.String("error", err.Error()), slog.String("id", msg.ID))
		c.ack(ctx, msg.ID)
		return true
	}

	op, err := c.queue.Get(ctx, m.OperationID)
	if err != nil {
		c.logger.Error("load operation", slog.String("error", err.Error()),
			slog.String("operation_id", m.OperationID.String()))
		if errors.Is(err, ErrNotFound) {
			c.ack(ctx, msg.ID)
			return true
		}
		return false
	}
	if op.RunState == RunStateCompleted || op.RunState == RunStateFailed {
		c.ack(ctx, msg.ID)
		return true
	}

	if err := handler(ctx, op); err != nil {
		c.logger.Error("handle operation", slog.String("error", err.Error()),
			slog.String("id", msg.ID),
			slog.String("operation_id", op.ID.String()))
		return false
	}
	c.ack(ctx, msg.ID)
	return true
}

func (c *Consumer) ack(ctx context.Context, msgID string) {
	resp := c.client.Do(ctx, c.client.B().Xack().
		Key(c.stream).Group(GroupName).Id(msgID).Build())
	if err := resp.Error(); err != nil {
		c.logger.Error("xack failed", slog.String("error", err.Error()), slog.String("id", msgID))
	}
}
