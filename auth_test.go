package speechmatics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetTempToken(t *testing.T) {
	var gotAuth, gotType string
	var gotTTL float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api_keys" {
			t.Errorf("path = %s, want /api_keys", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotType = r.URL.Query().Get("type")
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		gotTTL, _ = payload["ttl"].(float64)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"key_value":"temp-key"}`)
	}))
	defer srv.Close()
	t.Setenv("SM_MANAGEMENT_PLATFORM_URL", srv.URL)

	token, err := GetTempToken(context.Background(), ConnectionSettings{AuthToken: "long-lived"})
	if err != nil {
		t.Fatalf("GetTempToken() = %v", err)
	}
	if token != "temp-key" {
		t.Errorf("token = %q, want temp-key", token)
	}
	if gotAuth != "Bearer long-lived" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotType != "rt" {
		t.Errorf("type = %q, want rt", gotType)
	}
	if gotTTL != 60 {
		t.Errorf("ttl = %v, want 60", gotTTL)
	}
}

func TestGetTempTokenUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()
	t.Setenv("SM_MANAGEMENT_PLATFORM_URL", srv.URL)

	_, err := GetTempToken(context.Background(), ConnectionSettings{AuthToken: "bad"})
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("GetTempToken() = %v, want HTTPStatusError", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", statusErr.StatusCode)
	}
}
