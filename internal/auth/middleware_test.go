package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAuthParsesCredential(t *testing.T) {
	var got Credential
	var ok bool
	handler := RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = CredentialFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "12345:some-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !ok {
		t.Fatal("credential should be present in the context")
	}
	if got.Account != 12345 || got.Token != "some-token" {
		t.Errorf("parsed credential = %+v", got)
	}
}

func TestRequireAuthRejectsMalformedHeader(t *testing.T) {
	handler := RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without a credential")
	}))

	for _, header := range []string{"", "no-separator", "12345:", "not-a-number:token"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want %d", header, rec.Code, http.StatusUnauthorized)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("header %q: Content-Type = %q, want application/json", header, ct)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Errorf("header %q: body is not JSON: %v", header, err)
		} else if body["error"] != "unauthorized" {
			t.Errorf("header %q: error = %q", header, body["error"])
		}
	}
}
