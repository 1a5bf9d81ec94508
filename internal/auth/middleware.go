package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/subitlab-buf/sms4-backend/internal/model"
)

// Credential is the raw session credential a request carries: the
// claimed account id and the token string, taken from the
// Authorization header in the form "{accountID}:{token}".
type Credential struct {
	Account model.ID
	Token   string
}

type contextKey string

const credentialKey contextKey = "credential"

// RequireAuth parses the Authorization header into a Credential and
// stores it in the request context. Requests without a well-formed
// header are rejected with 401; the credential itself is verified
// against the account record later, by the guard.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred, ok := parseCredential(r)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{
					"error":   "unauthorized",
					"message": "valid authentication required",
				})
				return
			}

			ctx := context.WithValue(r.Context(), credentialKey, cred)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CredentialFromContext retrieves the parsed credential. Returns false
// on routes not wrapped by RequireAuth.
func CredentialFromContext(ctx context.Context) (Credential, bool) {
	cred, ok := ctx.Value(credentialKey).(Credential)
	return cred, ok
}

func parseCredential(r *http.Request) (Credential, bool) {
	header := r.Header.Get("Authorization")
	id, token, ok := strings.Cut(header, ":")
	if !ok || token == "" {
		return Credential{}, false
	}
	accountID, err := model.ParseID(id)
	if err != nil {
		return Credential{}, false
	}
	return Credential{Account: accountID, Token: token}, true
}
