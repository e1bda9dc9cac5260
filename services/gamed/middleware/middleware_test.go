package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"savingsgame/crypto"
)

const testSecret = "gamed-test-secret"

func testAddress(b byte) crypto.Address {
	var raw [20]byte
	raw[0] = 0x11
	raw[19] = b
	return crypto.AddressFromArray(raw)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func echoCaller(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := Caller(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(caller.String()))
	})
}

func TestAuthenticatorResolvesCaller(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "savings"}, nil)
	require.NoError(t, err)
	player := testAddress(1)

	cases := []struct {
		name   string
		header string
		scopes []string
		want   int
	}{
		{
			name:   "valid",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": player.String(), "iss": "savings", "exp": time.Now().Add(time.Hour).Unix()}),
			want:   http.StatusOK,
		},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{
			name:   "wrong secret",
			header: "Bearer " + signToken(t, "other", jwt.MapClaims{"sub": player.String(), "iss": "savings"}),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "expired",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": player.String(), "iss": "savings", "exp": time.Now().Add(-time.Hour).Unix()}),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "wrong issuer",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": player.String(), "iss": "other"}),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "subject not an address",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "alice", "iss": "savings"}),
			want:   http.StatusUnauthorized,
		},
		{
			name:   "missing admin scope",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": player.String(), "iss": "savings", "scope": "player"}),
			scopes: []string{"admin"},
			want:   http.StatusForbidden,
		},
		{
			name:   "admin scope",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": player.String(), "iss": "savings", "scope": []string{"player", "admin"}}),
			scopes: []string{"admin"},
			want:   http.StatusOK,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/join", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			auth.Middleware(tc.scopes...)(echoCaller(t)).ServeHTTP(res, req)
			require.Equal(t, tc.want, res.Code)
			if tc.want == http.StatusOK {
				require.Equal(t, player.String(), res.Body.String())
			}
		})
	}
}

func TestNewAuthenticatorRequiresSecret(t *testing.T) {
	_, err := NewAuthenticator(AuthConfig{}, nil)
	require.Error(t, err)
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("join")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/join", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		return res.Code
	}

	require.Equal(t, http.StatusOK, serve("192.0.2.1"))
	require.Equal(t, http.StatusTooManyRequests, serve("192.0.2.1"))
	require.Equal(t, http.StatusOK, serve("192.0.2.2"))

	now = now.Add(time.Minute)
	require.Equal(t, http.StatusOK, serve("192.0.2.1"))

	now = now.Add(10 * time.Minute)
	serve("192.0.2.3")
	require.Len(t, limiter.visitors, 1)
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{})
	handler := limiter.Middleware("join")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/game", nil))
		require.Equal(t, http.StatusNoContent, res.Code)
	}
}

func TestRequestIDReusesValidHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/v1/game", nil)
	req.Header.Set(RequestIDHeader, incoming)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, incoming, seen)
	require.Equal(t, incoming, res.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/v1/game", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	require.NotEqual(t, "not-a-uuid", seen)
}
