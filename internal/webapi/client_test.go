package webapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kongor-net/agql/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New("testkey")
	c.httpClient = srv.Client()
	c.baseURL = srv.URL
	return c
}

func TestGetPlayerSummaries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("steamids") != "123,456" {
			t.Errorf("got steamids=%q", r.URL.Query().Get("steamids"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":{"players":[{"steamid":"123","personaname":"alice"},{"steamid":"456","personaname":"bob"}]}}`))
	})

	players, err := c.GetPlayerSummaries(context.Background(), []string{"123", "456"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(players) != 2 || players[0].PersonaName != "alice" || players[1].PersonaName != "bob" {
		t.Fatalf("unexpected players: %+v", players)
	}
}

func TestGetEconSchema(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{"status":1,"items":[{"name":"Kritzkrieg","defindex":35}]}}`))
	})

	items, err := c.GetEconSchema(context.Background(), 440)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Kritzkrieg" || items[0].DefIndex != 35 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestGetJSON_NonOKStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.GetPlayerSummaries(context.Background(), []string{"123"})
	if !errors.Is(err, core.ErrTransport) {
		t.Fatalf("got %v, want ErrTransport", err)
	}
}

func TestGetJSON_MalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := c.GetPlayerSummaries(context.Background(), []string{"123"})
	if !errors.Is(err, core.ErrMalformedPayload) {
		t.Fatalf("got %v, want ErrMalformedPayload", err)
	}
}
