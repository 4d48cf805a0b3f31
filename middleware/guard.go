package middleware

import (
	"context"
	"net/http"
	"strings"

	captivault "github.com/captivault/captivault"
)

// RotatedTokenHeader carries the replacement access token when the session
// identifier was rotated during the request. Clients must adopt it
// immediately; the old token stops resolving the moment it is issued.
const RotatedTokenHeader = "X-Rotated-Token"

type guardResultContextKey struct{}

func GuardResultFromContext(ctx context.Context) (*captivault.GuardResult, bool) {
	res, ok := ctx.Value(guardResultContextKey{}).(*captivault.GuardResult)
	return res, ok
}

func Guard(engine *captivault.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Guard(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if res.Rotated {
				w.Header().Set(RotatedTokenHeader, res.AccessToken)
			}

			ctx := context.WithValue(r.Context(), guardResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
