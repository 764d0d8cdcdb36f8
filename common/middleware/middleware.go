// common/middleware/middleware.go
package middleware

import "net/http"

// Compose собирает цепочку: первый middleware оказывается внешним.
func Compose(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
