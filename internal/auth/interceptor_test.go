package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// passHandler is a grpc.UnaryHandler that returns ("ok", nil).
func passHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "ok", nil
}

func callWithKey(t *testing.T, interceptor grpc.UnaryServerInterceptor, header, key string) (interface{}, error) {
	t.Helper()
	ctx := context.Background()
	if key != "" {
		ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(header, key))
	}
	return interceptor(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
}

func TestAPIKeyInterceptor(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		key      string
		sentHdr  string
		sent     string
		wantCode codes.Code
	}{
		{"mode none passes", "none", "secret", "", "", codes.OK},
		{"empty key passes", "apikey", "", "", "", codes.OK},
		{"correct key", "apikey", "secret", "x-api-key", "secret", codes.OK},
		{"wrong key", "apikey", "secret", "x-api-key", "wrong", codes.Unauthenticated},
		{"no metadata", "apikey", "secret", "", "", codes.Unauthenticated},
		{"other header", "apikey", "secret", "x-other", "secret", codes.Unauthenticated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			i := APIKeyInterceptor(tc.mode, "x-api-key", tc.key)
			res, err := callWithKey(t, i, tc.sentHdr, tc.sent)
			if code := status.Code(err); code != tc.wantCode {
				t.Fatalf("code: got %v, want %v", code, tc.wantCode)
			}
			if tc.wantCode == codes.OK && res != "ok" {
				t.Errorf("result: got %v, want ok", res)
			}
		})
	}
}

func TestAPIKeyInterceptor_EmptyMetadata(t *testing.T) {
	i := APIKeyInterceptor("apikey", "x-api-key", "secret")
	ctx := metadata.NewIncomingContext(context.Background(), metadata.MD{})
	_, err := i(ctx, nil, &grpc.UnaryServerInfo{}, passHandler)
	if code := status.Code(err); code != codes.Unauthenticated {
		t.Errorf("code: got %v, want Unauthenticated", code)
	}
}

// fakeStream carries only a context.
type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f fakeStream) Context() context.Context { return f.ctx }

func TestAPIKeyStreamInterceptor(t *testing.T) {
	i := APIKeyStreamInterceptor("apikey", "x-api-key", "secret")
	called := false
	handler := func(srv interface{}, ss grpc.ServerStream) error {
		called = true
		return nil
	}

	err := i(nil, fakeStream{ctx: context.Background()}, &grpc.StreamServerInfo{}, handler)
	if status.Code(err) != codes.Unauthenticated || called {
		t.Fatalf("no key: err=%v called=%v", err, called)
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "secret"))
	if err := i(nil, fakeStream{ctx: ctx}, &grpc.StreamServerInfo{}, handler); err != nil {
		t.Fatalf("correct key: %v", err)
	}
	if !called {
		t.Error("handler not called with correct key")
	}
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware("apikey", "X-API-Key", "secret", "/api/v1/health")(ok)

	tests := []struct {
		name string
		path string
		key  string
		want int
	}{
		{"correct key", "/api/v1/scenarios", "secret", http.StatusNoContent},
		{"wrong key", "/api/v1/scenarios", "nope", http.StatusUnauthorized},
		{"missing key", "/api/v1/scenarios", "", http.StatusUnauthorized},
		{"open path", "/api/v1/health", "", http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.key != "" {
				req.Header.Set("X-API-Key", tc.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status: got %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware("none", "X-API-Key", "secret")(ok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scenarios", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", rec.Code)
	}
}
