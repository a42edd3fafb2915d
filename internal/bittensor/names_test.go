package bittensor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tao-tracker/tao-tracker/internal/bittensor"
)

func TestNameSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"1":"apex","2":{"name":" omron "},"x":"ignored","3":42}`))
	}))
	defer srv.Close()

	source, err := bittensor.NewNameSource(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewNameSource error: %v", err)
	}
	names, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(names) != 2 || names[1] != "apex" || names[2] != "omron" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestNameSourceFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	source, _ := bittensor.NewNameSource(srv.URL, srv.Client())
	if _, err := source.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error for non-2xx status")
	}
}

func TestNewNameSourceRequiresURL(t *testing.T) {
	if _, err := bittensor.NewNameSource("", nil); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
