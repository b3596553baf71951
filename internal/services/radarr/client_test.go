package radarr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"caretaker/internal/services"
	"caretaker/internal/testsupport"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithService("radarr", server.URL, "key"))
	return NewClient(cfg, services.WithHTTPClient(server.Client()))
}

func TestListItemsMergesQueueState(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key" {
			t.Errorf("missing api key header")
		}
		switch r.URL.Path {
		case "/api/v3/movie":
			w.Write([]byte(`[
				{"id":1,"title":"Heat","year":1995,"tmdbId":949,"imdbId":"tt0113277","monitored":true,"hasFile":true,
				 "status":"released","ratings":{"imdb":{"value":8.3},"rottenTomatoes":{"value":88}}},
				{"id":2,"title":"Dune","year":2021,"tmdbId":438631,"monitored":true,"hasFile":false,"status":"released"}
			]`))
		case "/api/v3/queue":
			w.Write([]byte(`{"records":[{"movieId":2}]}`))
		default:
			http.NotFound(w, r)
		}
	}))

	items, err := client.ListItems(context.Background())
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].IMDBRating != 8.3 || items[0].RTRating != 88 {
		t.Fatalf("unexpected ratings: %+v", items[0])
	}
	if items[0].Downloading {
		t.Fatal("expected Heat not downloading")
	}
	if !items[1].Downloading {
		t.Fatal("expected Dune marked downloading from queue")
	}
}

func TestTestConnectionClassifiesBadKey(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	status := client.TestConnection(context.Background())
	if status.Success {
		t.Fatal("expected failure with rejected credentials")
	}
}
