package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"coffeefarm/globals"
)

// JWT claims
type Claims struct {
	UserID    string `json:"userId"`
	Anonymous bool   `json:"anonymous,omitempty"`
	jwt.RegisteredClaims
}

// TokenParser turns a bearer token into verified claims.
type TokenParser interface {
	Parse(ctx context.Context, token string) (*Claims, error)
}

// BearerToken reads the Authorization header. Websocket upgrades cannot set
// headers from a browser, so they may pass ?token= instead.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	if websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("token")
	}
	return ""
}

func withClaims(r *http.Request, claims *Claims) *http.Request {
	ctx := context.WithValue(r.Context(), globals.UserIDKey, claims.UserID)
	ctx = context.WithValue(ctx, globals.SessionIDKey, claims.ID)
	return r.WithContext(ctx)
}

// Authenticate rejects requests without a valid session token.
func Authenticate(parser TokenParser) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			token := BearerToken(r)
			if token == "" {
				http.Error(w, "Missing token", http.StatusUnauthorized)
				return
			}
			claims, err := parser.Parse(r.Context(), token)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			next(w, withClaims(r, claims), ps)
		}
	}
}

// OptionalAuth adds the owner to the context when a valid token is present
// and proceeds regardless.
func OptionalAuth(parser TokenParser) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			if token := BearerToken(r); token != "" {
				if claims, err := parser.Parse(r.Context(), token); err == nil {
					r = withClaims(r, claims)
				}
			}
			next(w, r, ps)
		}
	}
}
