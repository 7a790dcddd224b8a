package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/emanuelef/ytstream-api/internal/domain"
	"github.com/emanuelef/ytstream-api/internal/transport/http/respond"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Recoverer turns handler panics into a JSON 500. http.ErrAbortHandler is re-raised so
// net/http drops the connection of an interrupted media stream.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			slog.Error("Panic recovered",
				"request_id", chimiddleware.GetReqID(r.Context()),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			respond.Error(w, http.StatusInternalServerError, domain.MsgServer, domain.KindServer)
		}()

		next.ServeHTTP(w, r)
	})
}
