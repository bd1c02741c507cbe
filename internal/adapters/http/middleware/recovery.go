package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/http/dto"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/http/encoding"
)

// Recovery turns a handler panic into a 500 response.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic in http handler",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				_ = encoding.WriteJSON(w, http.StatusInternalServerError,
					dto.NewErrorResponse("internal_error", "Internal server error", http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
