// common/ctxkeys/keys.go
package ctxkeys

type contextKey string

const (
	TraceIDKey   contextKey = "trace_id"
	RequestIDKey contextKey = "request_id"

	// WorkerIDKey несёт идентификатор воркера, которому принадлежит poller.
	WorkerIDKey contextKey = "worker_id"
)
