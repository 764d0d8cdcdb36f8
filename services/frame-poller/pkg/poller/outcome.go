// services/frame-poller/pkg/poller/outcome.go
package poller

import (
	"context"

	"github.com/YaganovValera/detector-stream/common/safe"
	"github.com/YaganovValera/detector-stream/services/frame-poller/pkg/reader"
)

type outcomeKind uint8

const (
	outcomeRecord outcomeKind = iota
	outcomeEmpty
	outcomeFatal
	outcomeUnexpected
	outcomeCancelled
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeRecord:
		return "record"
	case outcomeEmpty:
		return "empty"
	case outcomeFatal:
		return "fatal"
	case outcomeUnexpected:
		return "unexpected"
	case outcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// outcome is the classified result of one Read.
type outcome struct {
	kind outcomeKind
	rec  reader.Record
	err  error
}

// pull performs one Read, turning a panic inside the reader into an error.
func pull(ctx context.Context, r reader.Reader) outcome {
	if ctx.Err() != nil {
		return outcome{kind: outcomeCancelled, err: ctx.Err()}
	}
	rec, ok, err := safe.Call2(func() (reader.Record, bool, error) {
		return r.Read(ctx)
	})
	return classify(ctx, rec, ok, err)
}

func classify(ctx context.Context, rec reader.Record, ok bool, err error) outcome {
	switch {
	case ctx.Err() != nil:
		return outcome{kind: outcomeCancelled, err: ctx.Err()}
	case err == nil && ok:
		return outcome{kind: outcomeRecord, rec: rec}
	case err == nil:
		return outcome{kind: outcomeEmpty}
	case reader.IsFatal(err):
		return outcome{kind: outcomeFatal, err: err}
	default:
		return outcome{kind: outcomeUnexpected, err: err}
	}
}
