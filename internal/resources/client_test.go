package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateContainer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/resources/containers/rg-a" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Location string            `json:"location"`
			Tags     map[string]string `json:"tags"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Location != "fsn1" || body.Tags["lab"] != "true" {
			t.Errorf("body = %+v", body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	if err := c.CreateContainer(context.Background(), "rg-a", "fsn1", map[string]string{"lab": "true"}); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
}

func TestGetContainer_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	got, err := c.GetContainer(context.Background(), "rg-missing")
	if err != nil {
		t.Fatalf("GetContainer: %v", err)
	}
	if got != nil {
		t.Errorf("GetContainer = %+v, want nil", got)
	}
}

func TestDeleteContainer_NotFoundIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	if err := c.DeleteContainer(context.Background(), "rg-a"); err != nil {
		t.Fatalf("DeleteContainer on 404 should succeed, got %v", err)
	}
}

func TestDeleteContainer_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conflict", http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	if err := c.DeleteContainer(context.Background(), "rg-a"); err == nil {
		t.Fatal("DeleteContainer should surface non-404 failures")
	}
}
