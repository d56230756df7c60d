package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/MRAlirad/ccip-rebase-token/crypto"
)

func holder(b byte) crypto.Address {
	return crypto.MustNewAddress(crypto.HolderPrefix, bytes.Repeat([]byte{b}, crypto.AddressLength))
}

func bearerRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/mint", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuthenticatorAcceptsIssuedToken(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: "secret", Issuer: "rebased", Audience: "vaults"}, nil)
	alice := holder(0x01)
	token, err := IssueToken("secret", alice, "rebased", "vaults", time.Minute)
	require.NoError(t, err)

	var seen crypto.Address
	handler := auth.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		require.True(t, ok)
		seen = caller
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest(token))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, seen.Equal(alice))
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: "secret", Issuer: "rebased"}, nil)
	alice := holder(0x01)

	wrongSecret, err := IssueToken("other", alice, "rebased", "", time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := IssueToken("secret", alice, "someone-else", "", time.Minute)
	require.NoError(t, err)
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   alice.String(),
		Issuer:    "rebased",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	expiredToken, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	badSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-an-address",
		Issuer:    "rebased",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	badSubjectToken, err := badSubject.SignedString([]byte("secret"))
	require.NoError(t, err)
	foreignPrefix, err := IssueToken("secret", crypto.MustNewAddress("bc", bytes.Repeat([]byte{0x01}, crypto.AddressLength)), "rebased", "", time.Minute)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"missing":        "",
		"wrong secret":   wrongSecret,
		"wrong issuer":   wrongIssuer,
		"expired":        expiredToken,
		"bad subject":    badSubjectToken,
		"foreign prefix": foreignPrefix,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Authenticate(bearerRequest(token))
			require.Error(t, err)
		})
	}

	rec := httptest.NewRecorder()
	auth.Require(http.NotFoundHandler()).ServeHTTP(rec, bearerRequest(""))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), `"code":"unauthenticated"`)
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	_, err := IssueToken(" ", holder(0x01), "", "", time.Minute)
	require.Error(t, err)
}

func TestRateLimiterPerClient(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(remote string, caller *crypto.Address) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/protocol", nil)
		req.RemoteAddr = remote
		if caller != nil {
			req = req.WithContext(WithCaller(req.Context(), *caller))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, serve("10.0.0.1:1234", nil))
	require.Equal(t, http.StatusTooManyRequests, serve("10.0.0.1:5678", nil))
	require.Equal(t, http.StatusOK, serve("10.0.0.2:1234", nil))

	alice := holder(0x01)
	require.Equal(t, http.StatusOK, serve("10.0.0.1:1234", &alice))
	require.Equal(t, http.StatusTooManyRequests, serve("10.0.0.3:1234", &alice))

	now = now.Add(time.Minute)
	require.Equal(t, http.StatusOK, serve("10.0.0.1:1234", nil))
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestObserveRecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	r := chi.NewRouter()
	r.Use(Observe(m, nil))
	r.Get("/v1/accounts/{address}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/accounts/abc", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/v1/accounts/{address}", http.MethodGet, "418")))

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/abc", nil)
	req.Header.Set(RequestIDHeader, "6f1c1c1e-8d8e-4a4b-9a53-0a0b0c0d0e0f")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, "6f1c1c1e-8d8e-4a4b-9a53-0a0b0c0d0e0f", rec.Header().Get(RequestIDHeader))
}
