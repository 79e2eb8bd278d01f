// Package request assigns each request an ID for log correlation.
package request

import (
	"net/http"

	"github.com/google/uuid"

	"veritrail/pkg/requestcontext"
)

const HeaderRequestID = "X-Request-ID"

// RequestID honors an inbound X-Request-ID or mints one, stores it in the
// context, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
