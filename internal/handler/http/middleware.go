package http

import (
	"mime"
	"net/http"

	"github.com/tempuro/auth-service/internal/auth"
	"github.com/tempuro/auth-service/pkg/httputil"
	"github.com/tempuro/auth-service/pkg/middleware"
)

// ContentTypeJSON rejects requests whose body is declared as anything other
// than application/json. A missing Content-Type is accepted.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			mediaType, _, err := mime.ParseMediaType(ct)
			if err != nil || mediaType != "application/json" {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "Content-Type must be application/json"},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// AccessTokenValidator verifies access tokens.
type AccessTokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// bearerValidator adapts an AccessTokenValidator to middleware.BearerAuth.
func bearerValidator(v AccessTokenValidator) middleware.TokenValidator {
	return func(token string) (*middleware.Claims, error) {
		claims, err := v.ValidateAccessToken(token)
		if err != nil {
			return nil, err
		}
		out := &middleware.Claims{Subject: claims.Subject, TokenID: claims.ID}
		if claims.ExpiresAt != nil {
			out.ExpiresAt = claims.ExpiresAt.Time
		}
		return out, nil
	}
}
