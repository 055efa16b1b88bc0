package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"innkeeper/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func authAPIConfig() config.APIConfig {
	cfg := openAPIConfig()
	cfg.Auth = config.APIAuthConfig{
		Enabled: true,
		APIKeys: []config.APIClientKey{
			{Key: "desk-key", Extra: "desk-extra", Name: "frontdesk", Permissions: []string{permReadBookings}},
			{Key: "root-key", Extra: "root-extra", Name: "root"},
		},
	}
	return cfg
}

func TestHTTPAuth(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, authAPIConfig())
	url := ts.URL + "/api/v1/bookings/999"

	cases := []struct {
		name    string
		method  string
		url     string
		headers map[string]string
		status  int
	}{
		{"MissingHeaders", http.MethodGet, url, nil, http.StatusUnauthorized},
		{"UnknownKey", http.MethodGet, url, map[string]string{"X-API-Key": "nope", "X-API-Extra": "desk-extra"}, http.StatusUnauthorized},
		{"WrongExtra", http.MethodGet, url, map[string]string{"X-API-Key": "desk-key", "X-API-Extra": "wrong"}, http.StatusUnauthorized},
		{"Allowed", http.MethodGet, url, map[string]string{"X-API-Key": "desk-key", "X-API-Extra": "desk-extra"}, http.StatusNotFound},
		{"MissingPermission", http.MethodGet, ts.URL + "/api/v1/rooms", map[string]string{"X-API-Key": "desk-key", "X-API-Extra": "desk-extra"}, http.StatusForbidden},
		{"EmptyPermissionsAllowAll", http.MethodGet, ts.URL + "/api/v1/rooms", map[string]string{"X-API-Key": "root-key", "X-API-Extra": "root-extra"}, http.StatusOK},
		{"HealthzIsOpen", http.MethodGet, ts.URL + "/healthz", nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, tc.method, tc.url, nil, tc.headers)
			expectStatus(t, resp, tc.status)
		})
	}
}

func TestHTTPRateLimit(t *testing.T) {
	env := newTestEnv(t)
	cfg := openAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 1, Burst: 1}
	ts := env.server(t, cfg)

	headers := map[string]string{"X-API-Key": "client-a"}
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/rooms", nil, headers)
	expectStatus(t, resp, http.StatusOK)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/rooms", nil, headers)
	expectStatus(t, resp, http.StatusTooManyRequests)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/rooms", nil, map[string]string{"X-API-Key": "client-b"})
	expectStatus(t, resp, http.StatusOK)
}

func TestHTTPAuthActor(t *testing.T) {
	auth := NewHTTPAuth(authAPIConfig())
	var seen string
	handler := auth.Require(permReadBookings, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = actorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name  string
		actor string
		want  string
	}{
		{"ClientName", "", "frontdesk"},
		{"ActorHeader", "maria", "maria"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/1", nil)
			req.Header.Set("X-API-Key", "desk-key")
			req.Header.Set("X-API-Extra", "desk-extra")
			if tc.actor != "" {
				req.Header.Set("X-Actor", tc.actor)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			if seen != tc.want {
				t.Fatalf("expected actor %q, got %q", tc.want, seen)
			}
		})
	}

	if got := actorFrom(context.Background()); got != actorAnonymous {
		t.Fatalf("expected anonymous actor, got %q", got)
	}
}

func TestAuthInterceptor(t *testing.T) {
	cfg := authAPIConfig()
	interceptor := NewAuthInterceptor(&cfg).Unary()
	handler := func(ctx context.Context, _ any) (any, error) {
		return actorFrom(ctx), nil
	}

	cases := []struct {
		name   string
		method string
		md     metadata.MD
		code   codes.Code
	}{
		{"NoMetadata", methodGetBooking, nil, codes.Unauthenticated},
		{"MissingExtra", methodGetBooking, metadata.Pairs("x-api-key", "desk-key"), codes.Unauthenticated},
		{"WrongExtra", methodGetBooking, metadata.Pairs("x-api-key", "desk-key", "x-api-extra", "bad"), codes.Unauthenticated},
		{"PermissionDenied", methodSweepOverdue, metadata.Pairs("x-api-key", "desk-key", "x-api-extra", "desk-extra"), codes.PermissionDenied},
		{"Allowed", methodGetBooking, metadata.Pairs("x-api-key", "desk-key", "x-api-extra", "desk-extra"), codes.OK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if tc.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tc.md)
			}
			resp, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: tc.method}, handler)
			if got := status.Code(err); got != tc.code {
				t.Fatalf("expected code %s, got %s (%v)", tc.code, got, err)
			}
			if tc.code == codes.OK && resp != "frontdesk" {
				t.Fatalf("expected actor frontdesk, got %v", resp)
			}
		})
	}
}

func TestRequiredPermission(t *testing.T) {
	cases := map[string]string{
		methodCheckAvailability: permReadAvailability,
		methodListRooms:         permReadAvailability,
		methodGetBooking:        permReadBookings,
		methodSweepOverdue:      permReception,
		"/other.Service/Call":   "",
	}
	for method, want := range cases {
		if got := requiredPermission(method); got != want {
			t.Fatalf("%s: expected %q, got %q", method, want, got)
		}
	}
}

func TestChainUnaryInterceptorsOrder(t *testing.T) {
	var calls []string
	mk := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			calls = append(calls, name)
			return handler(ctx, req)
		}
	}
	chain := ChainUnaryInterceptors(mk("first"), mk("second"))
	_, err := chain(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		calls = append(calls, "handler")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(calls) != 3 || calls[0] != "first" || calls[1] != "second" || calls[2] != "handler" {
		t.Fatalf("unexpected order: %v", calls)
	}
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	recovery := RecoveryUnaryInterceptor(nil)
	_, err := recovery(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: methodListRooms}, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}
