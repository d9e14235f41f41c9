package web

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/fleetimport/internal/core"
	mw "github.com/JonMunkholm/fleetimport/internal/web/middleware"
)

// requestMetadata records the client address and actor for commit logs.
// X-Actor names the operator when the caller is a trusted front end;
// otherwise the API key fingerprint set by APIKeyAuth stays in place.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithClientIP(r.Context(), clientIP(r))
		if actor := strings.TrimSpace(r.Header.Get("X-Actor")); actor != "" {
			if len(actor) > 128 {
				actor = actor[:128]
			}
			ctx = core.ContextWithActor(ctx, actor)
		}
		r = r.WithContext(ctx)
		mw.RecordActor(r)
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the address TrustedRealIP settled on.
func clientIP(r *http.Request) string {
	return r.RemoteAddr
}
