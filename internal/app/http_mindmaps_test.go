package app

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"mindmapai/api/internal/search"
	"mindmapai/api/internal/store"
)

func sampleMap(id, owner string, public bool) store.MindMap {
	ownerID := owner
	return store.MindMap{
		ID:        id,
		UserID:    &ownerID,
		Title:     "Sample",
		Content:   "# Sample",
		IsPublic:  public,
		CreatedAt: time.Unix(1700000000, 0),
		UpdatedAt: time.Unix(1700000100, 0),
	}
}

func TestListMindMapsAnonymousSeesPublicScope(t *testing.T) {
	var calledWith string
	fs := &fakeStore{
		listMindMapsFn: func(_ context.Context, callerID string) ([]store.MindMap, error) {
			calledWith = callerID
			return []store.MindMap{sampleMap("m1", "u2", true)}, nil
		},
	}
	rr := doJSON(t, newTestServer(fs), http.MethodGet, "/api/mindmaps", "", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if calledWith != "" {
		t.Fatalf("anonymous listing must pass an empty caller id, got %q", calledWith)
	}
	payload := parseBody(t, rr)
	items, _ := payload["mindMaps"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one map, got %v", payload)
	}
	first, _ := items[0].(map[string]any)
	if _, hasContent := first["content"]; hasContent {
		t.Fatal("listing must carry metadata only, not content")
	}
}

func TestListMindMapsPassesCallerID(t *testing.T) {
	var calledWith string
	fs := &fakeStore{
		listMindMapsFn: func(_ context.Context, callerID string) ([]store.MindMap, error) {
			calledWith = callerID
			return nil, nil
		},
	}
	rr := doJSON(t, newTestServer(fs), http.MethodGet, "/api/mindmaps", testToken(t, "u1", "user"), "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if calledWith != "u1" {
		t.Fatalf("expected caller id u1, got %q", calledWith)
	}
	payload := parseBody(t, rr)
	if items, ok := payload["mindMaps"].([]any); !ok || items == nil {
		t.Fatalf("empty listing must be an empty array, got %v", payload)
	}
}

func TestCreateMindMapRequiresAuth(t *testing.T) {
	rr := doJSON(t, newTestServer(&fakeStore{}), http.MethodPost, "/api/mindmaps", "",
		`{"title":"Go","content":"# Go"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateMindMapValidatesInput(t *testing.T) {
	rr := doJSON(t, newTestServer(&fakeStore{}), http.MethodPost, "/api/mindmaps",
		testToken(t, "u1", "user"), `{"title":"  ","content":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateMindMapReturnsEnvelope(t *testing.T) {
	fs := &fakeStore{
		insertMindMapFn: func(_ context.Context, m store.MindMap) (store.MindMap, error) {
			m.CreatedAt = time.Unix(1700000000, 0)
			m.UpdatedAt = m.CreatedAt
			return m, nil
		},
	}
	rr := doJSON(t, newTestServer(fs), http.MethodPost, "/api/mindmaps",
		testToken(t, "u1", "user"), `{"title":"Go","description":"notes","content":"# Go","isPublic":false}`)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	m, _ := payload["mindMap"].(map[string]any)
	if m["userId"] != "u1" || m["isPublic"] != false || m["content"] != "# Go" {
		t.Fatalf("unexpected envelope: %v", m)
	}
	if m["id"] == "" || m["id"] == nil {
		t.Fatal("expected a generated id")
	}
}

func TestGetMindMapVisibility(t *testing.T) {
	private := sampleMap("m1", "u1", false)
	fs := &fakeStore{
		getMindMapFn: func(_ context.Context, id string) (store.MindMap, error) {
			if id == "m1" {
				return private, nil
			}
			return store.MindMap{}, sql.ErrNoRows
		},
	}
	server := newTestServer(fs)

	// Owner sees the full map.
	rr := doJSON(t, server, http.MethodGet, "/api/mindmaps/m1", testToken(t, "u1", "user"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	m, _ := payload["mindMap"].(map[string]any)
	if m["content"] != "# Sample" {
		t.Fatalf("owner must see content, got %v", m)
	}

	// A different user and an anonymous caller both get 404, not 403.
	for _, token := range []string{testToken(t, "u2", "user"), ""} {
		rr := doJSON(t, server, http.MethodGet, "/api/mindmaps/m1", token, "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("hidden map: expected 404, got %d body=%s", rr.Code, rr.Body.String())
		}
	}

	// Admins get no special read access to private maps.
	rr = doJSON(t, server, http.MethodGet, "/api/mindmaps/m1", testToken(t, "u3", "admin"), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("admin on private map: expected 404, got %d", rr.Code)
	}

	// Absent map is 404 too.
	rr = doJSON(t, server, http.MethodGet, "/api/mindmaps/missing", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("absent map: expected 404, got %d", rr.Code)
	}
}

func TestGetPublicMindMapAnonymously(t *testing.T) {
	fs := &fakeStore{
		getMindMapFn: func(_ context.Context, id string) (store.MindMap, error) {
			return sampleMap(id, "u1", true), nil
		},
	}
	rr := doJSON(t, newTestServer(fs), http.MethodGet, "/api/mindmaps/m1", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestUpdateMindMapOwnerFilter(t *testing.T) {
	fs := &fakeStore{
		updateMindMapFn: func(_ context.Context, id, ownerID, title string, description *string, content string, isPublic bool) (store.MindMap, error) {
			if ownerID != "u1" {
				return store.MindMap{}, sql.ErrNoRows
			}
			m := sampleMap(id, ownerID, isPublic)
			m.Title = title
			m.Content = content
			return m, nil
		},
	}
	server := newTestServer(fs)
	body := `{"title":"Updated","content":"# Updated"}`

	rr := doJSON(t, server, http.MethodPut, "/api/mindmaps/m1", "", body)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodPut, "/api/mindmaps/m1", testToken(t, "u2", "user"), body)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("non-owner: expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPut, "/api/mindmaps/m1", testToken(t, "u1", "user"), body)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	m, _ := payload["mindMap"].(map[string]any)
	if m["title"] != "Updated" {
		t.Fatalf("unexpected payload: %v", m)
	}
}

func TestDeleteMindMapOwnerFilter(t *testing.T) {
	fs := &fakeStore{
		deleteMindMapFn: func(_ context.Context, id, ownerID string) (bool, error) {
			return ownerID == "u1", nil
		},
	}
	server := newTestServer(fs)

	rr := doJSON(t, server, http.MethodDelete, "/api/mindmaps/m1", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodDelete, "/api/mindmaps/m1", testToken(t, "u2", "user"), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("non-owner: expected 404, got %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodDelete, "/api/mindmaps/m1", testToken(t, "u1", "user"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSearchEndpointPassesCallerAndQuery(t *testing.T) {
	var got search.Query
	searcher := &fakeSearcher{
		searchFn: func(q search.Query) search.Response {
			got = q
			return search.Response{
				Results: []search.Result{{ID: "m1", Title: "Go", IsPublic: true}},
				Total:   1,
				Query:   q.Text,
			}
		},
	}
	svc := New(testConfig(), &fakeStore{}, searcher, &fakeGenerator{}, zap.NewNop())
	server := NewHTTPServer(svc, "*", true, zap.NewNop())

	rr := doJSON(t, server, http.MethodGet, "/api/mindmaps/search?q=go&limit=5&offset=10",
		testToken(t, "u1", "user"), "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got.Text != "go" || got.CallerID != "u1" || got.Limit != 5 || got.Offset != 10 {
		t.Fatalf("unexpected query: %+v", got)
	}
	payload := parseBody(t, rr)
	if payload["total"] != float64(1) {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestSearchEndpointRejectsBadPaging(t *testing.T) {
	rr := doJSON(t, newTestServer(&fakeStore{}), http.MethodGet, "/api/mindmaps/search?q=go&limit=zero", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGenerateEndpoint(t *testing.T) {
	server := newTestServer(&fakeStore{})

	// Generation needs no account, anonymous callers get content too.
	rr := doJSON(t, server, http.MethodPost, "/api/generate", "", `{"topic":"Go"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("anonymous: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["content"] != "# Go" {
		t.Fatalf("unexpected payload: %v", payload)
	}

	rr = doJSON(t, server, http.MethodPost, "/api/generate", testToken(t, "u1", "user"), `{"topic":"Go"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("authenticated: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, "/api/generate", "", `{"topic":"  "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty topic: expected 400, got %d", rr.Code)
	}
}
