package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func authServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteVerifier_Valid(t *testing.T) {
	var gotAuth, gotPath string
	srv := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"isValid": true, "user_id": 123}`))
	})

	p, err := NewRemoteVerifier(srv.URL+"/", srv.Client()).Verify(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.UserID != "123" {
		t.Errorf("UserID = %q, want 123", p.UserID)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", gotAuth)
	}
	if gotPath != "/api/token/verify" {
		t.Errorf("path = %q, want /api/token/verify", gotPath)
	}
}

func TestRemoteVerifier_StringUserID(t *testing.T) {
	srv := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user_id": "u-7"}`))
	})
	p, err := NewRemoteVerifier(srv.URL, srv.Client()).Verify(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.UserID != "u-7" {
		t.Errorf("UserID = %q, want u-7", p.UserID)
	}
}

func TestRemoteVerifier_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"status", http.StatusUnauthorized, `{"error":"expired"}`},
		{"not valid", http.StatusOK, `{"isValid": false, "user_id": 1}`},
		{"no user", http.StatusOK, `{"isValid": true}`},
		{"zero user", http.StatusOK, `{"isValid": true, "user_id": 0}`},
		{"garbage", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := authServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := NewRemoteVerifier(srv.URL, srv.Client()).Verify(context.Background(), "tok")
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("err = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestRemoteVerifier_EmptyTokenSkipsCall(t *testing.T) {
	called := false
	srv := authServer(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	_, err := NewRemoteVerifier(srv.URL, srv.Client()).Verify(context.Background(), "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if called {
		t.Error("auth service called for empty token")
	}
}

func TestRemoteVerifier_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	v := NewRemoteVerifier(url, &http.Client{Timeout: time.Second})
	_, err := v.Verify(context.Background(), "tok")
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("err = %v, want ErrAuthUnavailable", err)
	}
}
