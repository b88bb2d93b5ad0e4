package auth

import (
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
	"github.com/vasiliy-maslov/order-platform/pkg/httpx"
)

var (
	errMissingToken = apperr.New(apperr.Unauthorized, "invalid or expired token")
	errForbidden    = apperr.New(apperr.Forbidden, "insufficient role for this operation")
)

// Gate verifies the bearer credential on every request. A missing
// credential is rejected exactly like an invalid one. On success the
// principal and the raw credential are attached to the request context.
func Gate(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := Credential(r.Header.Get("Authorization"))

			token, ok := cred.Token()
			if !ok {
				hlog.FromRequest(r).Warn().Str("path", r.URL.Path).Msg("auth: request without bearer credential")
				httpx.RespondError(w, errMissingToken)
				return
			}

			principal, err := v.Verify(token)
			if err != nil {
				hlog.FromRequest(r).Warn().Err(err).Str("path", r.URL.Path).Msg("auth: token verification failed")
				httpx.RespondError(w, err)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			ctx = WithCredential(ctx, cred)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after Gate.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				httpx.RespondError(w, errMissingToken)
				return
			}

			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			hlog.FromRequest(r).Warn().
				Stringer("user_id", principal.ID).
				Str("role", string(principal.Role)).
				Msg("auth: role not permitted")
			httpx.RespondError(w, errForbidden)
		})
	}
}
