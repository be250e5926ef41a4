package access

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/store"
)

func newTestClient(baseURL string) *Client {
	return New(config.ConciergeConfig{
		BaseURL: baseURL,
		APIKey:  "secret-key",
		Timeout: 2 * time.Second,
	}, log.New(io.Discard, "", 0))
}

func TestDeleteAccessRequest(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotAuth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.DeleteAccessRequest(context.Background(), "req-42"); err != nil {
		t.Fatalf("DeleteAccessRequest: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Fatalf("expected DELETE, got %s", gotMethod)
	}
	if gotPath != "/api/access-requests/req-42" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer secret-key" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
}

func TestDeleteAccessRequestUnsupported(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusMethodNotAllowed} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c := newTestClient(srv.URL)
		err := c.DeleteAccessRequest(context.Background(), "req-42")
		srv.Close()
		if !errors.Is(err, ErrUnsupported) {
			t.Fatalf("status %d: expected ErrUnsupported, got %v", status, err)
		}
	}
}

func TestDeleteAccessRequestUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("concierge database is down"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.DeleteAccessRequest(context.Background(), "req-42")
	var ue *store.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Status != http.StatusInternalServerError || ue.Service != "concierge" {
		t.Fatalf("unexpected upstream error: %+v", ue)
	}
	if ue.Msg != "concierge database is down" {
		t.Fatalf("expected upstream body in message, got %q", ue.Msg)
	}
}

func TestDeleteAccessRequestUnconfigured(t *testing.T) {
	c := newTestClient("")
	err := c.DeleteAccessRequest(context.Background(), "req-42")
	var ue *store.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError for unconfigured client, got %v", err)
	}
}

func TestDeleteAccessRequestRequiresID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("request must not reach the server")
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if err := c.DeleteAccessRequest(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty id")
	}
}
