package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Hook runs around every handler attempt. An error from Before fails the
// attempt without calling the handler.
type Hook interface {
	Before(ctx context.Context, km kafka.Message) (context.Context, error)
	After(ctx context.Context, km kafka.Message, err error)
}

// hookChain runs Before in order and After in reverse. A panicking hook is
// reported as an error from Before and ignored in After.
type hookChain []Hook

func (hc hookChain) before(ctx context.Context, km kafka.Message) (out context.Context, err error) {
	out = ctx
	for _, h := range hc {
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("kafka hook %T panicked: %v", h, r)
				}
			}()
			out, err = h.Before(out, km)
		}()
		if err != nil {
			return ctx, err
		}
	}
	return out, nil
}

func (hc hookChain) after(ctx context.Context, km kafka.Message, err error) {
	for i := len(hc) - 1; i >= 0; i-- {
		func() {
			defer func() { _ = recover() }()
			hc[i].After(ctx, km, err)
		}()
	}
}

type ctxKey int

const (
	keyStart ctxKey = iota
	keyTraceID
	keyRecordKey
)

// TraceHeader is the record header Tracing copies into the context.
const TraceHeader = "trace_id"

// Tracing puts the record key, the trace header and the attempt start time
// into the handler context.
type Tracing struct{}

func (Tracing) Before(ctx context.Context, km kafka.Message) (context.Context, error) {
	ctx = context.WithValue(ctx, keyStart, time.Now())
	if len(km.Key) > 0 {
		ctx = context.WithValue(ctx, keyRecordKey, string(km.Key))
	}
	for _, h := range km.Headers {
		if h.Key == TraceHeader && len(h.Value) > 0 {
			ctx = context.WithValue(ctx, keyTraceID, string(h.Value))
			break
		}
	}
	return ctx, nil
}

func (Tracing) After(context.Context, kafka.Message, error) {}

// MessageKeyFrom returns the record key, empty for unkeyed records.
func MessageKeyFrom(ctx context.Context) string {
	v, _ := ctx.Value(keyRecordKey).(string)
	return v
}

func TraceIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(keyTraceID).(string)
	return v
}

func StartTimeFrom(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(keyStart).(time.Time)
	return t, ok
}
