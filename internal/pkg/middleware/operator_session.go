package middleware

import (
	"net/http"
	"strings"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/livecart/lc-checkout/internal/pkg/jwt"
	"github.com/livecart/lc-checkout/internal/pkg/session"
	"github.com/livecart/lc-checkout/pkg/errors"
	"github.com/livecart/lc-checkout/pkg/response"
	"github.com/livecart/lc-checkout/pkg/status"
)

// OperatorSession authenticates internal operator routes such as the pending
// compensation listing. Operator sessions are issued by the back-office and
// live in their own store namespace, separate from buyer sessions.
type OperatorSession struct {
	jsonWebToken *jwt.JSONWebToken
	store        session.Store
}

func NewOperatorSessionMiddleware(jsonWebToken *jwt.JSONWebToken, store session.Store) *OperatorSession {
	return &OperatorSession{
		jsonWebToken: jsonWebToken,
		store:        store,
	}
}

func (m *OperatorSession) Verify(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		authorization := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(authorization, "Bearer ")
		if !found || token == "" {
			response.JSON(w, http.StatusUnauthorized, response.RESTEnvelope{
				Status:  status.UNAUTHORIZED,
				Message: "missing bearer token",
			})
			return
		}

		claims := gojwt.RegisteredClaims{}
		if err := m.jsonWebToken.Parse(token, &claims); err != nil {
			response.JSON(w, http.StatusUnauthorized, response.RESTEnvelope{
				Status:  status.UNAUTHORIZED,
				Message: "invalid token",
			})
			return
		}

		acc, err := m.store.Get(ctx, claims.ID)
		if err != nil {
			ae := errors.Destruct(err)
			response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
				Status:  ae.Status,
				Message: ae.Message,
			})
			return
		}

		next(w, r.WithContext(session.SetAccountToCtx(ctx, acc)))
	}
}
