package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"cryptoPositionWatch/internal/ports"
)

// Recovery turns a handler panic into a 500 and logs the stack.
func Recovery(logger ports.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error(r.Context(), fmt.Errorf("panic: %v", rec), "Admin handler panicked", map[string]interface{}{
						"path":  r.URL.Path,
						"stack": string(debug.Stack()),
					})
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
