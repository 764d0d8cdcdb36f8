// common/middleware/requestid.go
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/YaganovValera/detector-stream/common/logger"
)

// HeaderRequestID: заголовок, в котором принимается и возвращается request-id.
const HeaderRequestID = "X-Request-ID"

// RequestID берёт X-Request-ID из запроса или генерирует новый UUID
// и кладёт его в контекст для logger.WithContext.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(HeaderRequestID)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			ctx := logger.ContextWithRequestID(r.Context(), reqID)
			w.Header().Set(HeaderRequestID, reqID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
