package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHTTPTransportPostsForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("action") != ActionGetProductDataForStorage || r.PostForm.Get("nonce") != "n0nce" {
			t.Errorf("unexpected action/nonce %v", r.PostForm)
		}
		if got := r.PostForm["room_products[]"]; len(got) != 2 || got[0] != "1" || got[1] != "2" {
			t.Errorf("unexpected room_products %v", got)
		}
		if r.PostForm.Get("room_width") != "3.5" || r.PostForm.Get("include_suggestions") != "true" {
			t.Errorf("unexpected scalars %v", r.PostForm)
		}
		if r.PostForm.Get("form_data") != `{"id":"r1"}` {
			t.Errorf("unexpected form_data %q", r.PostForm.Get("form_data"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"ok":1}}`))
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL, "n0nce", srv.Client())
	env, err := transport.Call(context.Background(), ActionGetProductDataForStorage, Payload{
		"room_products":       []string{"1", "2"},
		"room_width":          3.5,
		"include_suggestions": true,
		"form_data":           map[string]string{"id": "r1"},
		"ignored":             nil,
	})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !env.Success || string(env.Data) != `{"ok":1}` {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestHTTPTransportReportsStatusErrorsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL, "", srv.Client())
	_, err := transport.Call(context.Background(), "remove_room", nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 HTTPError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one request, got %d", calls.Load())
	}
}

func TestHTTPTransportRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0"))
	}))
	defer srv.Close()
	transport := NewHTTPTransport(srv.URL, "", srv.Client())
	if _, err := transport.Call(context.Background(), "x", nil); err == nil {
		t.Fatalf("expected decode error")
	}
}
