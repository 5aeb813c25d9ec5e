package middleware

import (
	"context"
	"net/http"
	"strings"

	"partymaker/internal/authctx"
	"partymaker/internal/httpjson"
	"partymaker/internal/utils"

	"firebase.google.com/go/v4/auth"
)

// TokenVerifier is satisfied by *auth.Client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// WithAuth requires a Firebase ID token and stores the caller's uid, claims
// and normalized user key in the request context.
func WithAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
				httpjson.Error(w, http.StatusUnauthorized, "missing Authorization: Bearer <token>")
				return
			}
			idToken := strings.TrimSpace(h[len("Bearer "):])

			tok, err := v.VerifyIDToken(r.Context(), idToken)
			if err != nil {
				httpjson.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}

			caller := authctx.Caller{UID: tok.UID, Claims: tok.Claims}
			if email, ok := tok.Claims["email"].(string); ok && email != "" {
				caller.UserKey = utils.NormalizeUserKey(email)
			}
			next.ServeHTTP(w, r.WithContext(authctx.WithCaller(r.Context(), caller)))
		})
	}
}
