package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

func protected(a Auth) (http.HandlerFunc, *string) {
	var subject string
	return a.Middleware(func(w http.ResponseWriter, r *http.Request) {
		subject = r.Header.Get(HeaderSubjectKey)
		w.WriteHeader(http.StatusOK)
	}), &subject
}

func call(h http.HandlerFunc, authorization string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/orders/ORD-1/payments", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec.Code
}

func TestMiddleware(t *testing.T) {
	a := NewAuth("admin-secret")
	h, subject := protected(a)

	token, err := a.IssueToken("ops", time.Hour)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, call(h, "Bearer "+token))
	require.Equal(t, "ops", *subject)
}

func TestMiddlewareRejects(t *testing.T) {
	a := NewAuth("admin-secret")
	h, _ := protected(a)

	expired, err := a.IssueToken("ops", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewAuth("other-secret").IssueToken("ops", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer: issuer, Subject: "ops",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"no header":      "",
		"basic":          "Basic b3BzOnB3",
		"garbage":        "Bearer abc.def.ghi",
		"expired":        "Bearer " + expired,
		"foreign secret": "Bearer " + foreign,
		"alg none":       "Bearer " + none,
	}
	for name, authorization := range tests {
		require.Equal(t, http.StatusUnauthorized, call(h, authorization), name)
	}
}

func TestNoSecret(t *testing.T) {
	a := NewAuth("")

	_, err := a.IssueToken("ops", time.Hour)
	require.ErrorIs(t, err, ErrNoSecret)

	token, err := NewAuth("admin-secret").IssueToken("ops", time.Hour)
	require.NoError(t, err)
	h, _ := protected(a)
	require.Equal(t, http.StatusUnauthorized, call(h, "Bearer "+token))
}
