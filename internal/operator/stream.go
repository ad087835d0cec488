package operator

import "context"

// Stream is a generator-style operator result. Next returns ok=false once
// the stream is exhausted.
type Stream interface {
	Next(ctx context.Context) (value any, ok bool, err error)
}

// Progress is a progress update a Stream may yield while it runs.
type Progress struct {
	Progress float64 `json:"progress"`
	Label    string  `json:"label,omitempty"`
}

// Drain consumes s until exhaustion and returns the last value it yielded.
func Drain(ctx context.Context, s Stream) (any, error) {
	return DrainEach(ctx, s, nil)
}

// DrainEach is Drain with a callback invoked for every yielded value.
func DrainEach(ctx context.Context, s Stream, fn func(any)) (any, error) {
	var last any
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, ok, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return last, nil
		}
		if fn != nil {
			fn(v)
		}
		last = v
	}
}

// SliceStream yields the given values in order.
type SliceStream struct {
	values []any
	pos    int
}

func NewSliceStream(values ...any) *SliceStream {
	return &SliceStream{values: values}
}

func (s *SliceStream) Next(_ context.Context) (any, bool, error) {
	if s.pos >= len(s.values) {
		return nil, false, nil
	}
	v := s.values[s.pos]
	s.pos++
	return v, true, nil
}

// FuncStream adapts a function to Stream.
type FuncStream func(ctx context.Context) (any, bool, error)

func (f FuncStream) Next(ctx context.Context) (any, bool, error) { return f(ctx) }
