package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"mindmapai/api/internal/store"
)

// memStore is a stateful in-memory dataStore used for end-to-end flows that
// span several requests.
type memStore struct {
	users        map[string]store.User
	applications map[string]store.Application
	maps         map[string]store.MindMap
	nextID       int
}

func newMemStore() *memStore {
	return &memStore{
		users:        map[string]store.User{},
		applications: map[string]store.Application{},
		maps:         map[string]store.MindMap{},
	}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) SchemaPresent(context.Context) (bool, error) { return true, nil }

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) UserExists(_ context.Context, email, username string) (bool, error) {
	for _, u := range m.users {
		if u.Email == email || u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertUser(_ context.Context, user store.User) (store.User, error) {
	for _, u := range m.users {
		if u.Email == user.Email || u.Username == user.Username {
			return store.User{}, store.ErrDuplicate
		}
	}
	user.ID = m.id("user")
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) ListUsers(context.Context) ([]store.User, error) {
	users := make([]store.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	return users, nil
}

func (m *memStore) UpdateUserRoleStatus(_ context.Context, id string, role *string, status *store.Status) (store.User, error) {
	u, ok := m.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	if role != nil {
		u.Role = *role
	}
	if status != nil {
		u.Status = *status
	}
	m.users[id] = u
	return u, nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) (bool, error) {
	if _, ok := m.users[id]; !ok {
		return false, nil
	}
	delete(m.users, id)
	for mapID, mm := range m.maps {
		if mm.UserID != nil && *mm.UserID == id {
			delete(m.maps, mapID)
		}
	}
	return true, nil
}

func (m *memStore) CountUsers(context.Context) (int, error) { return len(m.users), nil }

func (m *memStore) ApplicationExists(_ context.Context, email, username string) (bool, error) {
	for _, a := range m.applications {
		if a.Email == email || a.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertApplication(_ context.Context, application store.Application) (store.Application, error) {
	for _, a := range m.applications {
		if a.Email == application.Email || a.Username == application.Username {
			return store.Application{}, store.ErrDuplicate
		}
	}
	application.ID = m.id("app")
	application.Status = store.StatusPending
	application.CreatedAt = time.Now()
	application.UpdatedAt = application.CreatedAt
	m.applications[application.ID] = application
	return application, nil
}

func (m *memStore) ListPendingApplications(context.Context) ([]store.Application, error) {
	applications := make([]store.Application, 0)
	for _, a := range m.applications {
		if a.Status == store.StatusPending {
			applications = append(applications, a)
		}
	}
	return applications, nil
}

func (m *memStore) GetApplication(_ context.Context, id string) (store.Application, error) {
	a, ok := m.applications[id]
	if !ok {
		return store.Application{}, sql.ErrNoRows
	}
	return a, nil
}

func (m *memStore) SetApplicationStatus(_ context.Context, id string, status store.Status) error {
	a, ok := m.applications[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.Status = status
	m.applications[id] = a
	return nil
}

func (m *memStore) ListMindMaps(_ context.Context, callerID string) ([]store.MindMap, error) {
	maps := make([]store.MindMap, 0)
	for _, mm := range m.maps {
		if mm.IsPublic || (callerID != "" && mm.UserID != nil && *mm.UserID == callerID) {
			mm.Content = ""
			maps = append(maps, mm)
		}
	}
	return maps, nil
}

func (m *memStore) GetMindMap(_ context.Context, id string) (store.MindMap, error) {
	mm, ok := m.maps[id]
	if !ok {
		return store.MindMap{}, sql.ErrNoRows
	}
	return mm, nil
}

func (m *memStore) InsertMindMap(_ context.Context, mm store.MindMap) (store.MindMap, error) {
	mm.CreatedAt = time.Now()
	mm.UpdatedAt = mm.CreatedAt
	m.maps[mm.ID] = mm
	return mm, nil
}

func (m *memStore) UpdateMindMap(_ context.Context, id, ownerID, title string, description *string, content string, isPublic bool) (store.MindMap, error) {
	mm, ok := m.maps[id]
	if !ok || mm.UserID == nil || *mm.UserID != ownerID {
		return store.MindMap{}, sql.ErrNoRows
	}
	mm.Title = title
	mm.Description = description
	mm.Content = content
	mm.IsPublic = isPublic
	mm.UpdatedAt = time.Now()
	m.maps[id] = mm
	return mm, nil
}

func (m *memStore) DeleteMindMap(_ context.Context, id, ownerID string) (bool, error) {
	mm, ok := m.maps[id]
	if !ok || mm.UserID == nil || *mm.UserID != ownerID {
		return false, nil
	}
	delete(m.maps, id)
	return true, nil
}

// The full life of an account: register, admin approval, login, then map
// authoring with visibility enforced against other callers.
func TestRegisterApproveLoginAuthorFlow(t *testing.T) {
	ms := newMemStore()
	svc := New(testConfig(), ms, &fakeSearcher{}, &fakeGenerator{}, zap.NewNop())
	server := NewHTTPServer(svc, "*", true, zap.NewNop())
	admin := testToken(t, "admin-0", "admin")

	// Register.
	rr := doJSON(t, server, http.MethodPost, "/api/auth/register", "",
		`{"email":"a@x.com","username":"alice","password":"secret1"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	application, _ := parseBody(t, rr)["application"].(map[string]any)
	appID, _ := application["id"].(string)
	if appID == "" {
		t.Fatal("expected an application id")
	}
	if len(ms.users) != 0 {
		t.Fatal("registration must not create an account")
	}

	// Login before approval is forbidden.
	rr = doJSON(t, server, http.MethodPost, "/api/auth/login", "",
		`{"email":"a@x.com","password":"secret1"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("pre-approval login: expected 403, got %d", rr.Code)
	}

	// Duplicate registration conflicts while the application is pending.
	rr = doJSON(t, server, http.MethodPost, "/api/auth/register", "",
		`{"email":"a@x.com","username":"alice2","password":"secret1"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", rr.Code)
	}

	// Admin approves.
	rr = doJSON(t, server, http.MethodPut, "/api/admin/applications/"+appID, admin, `{"action":"approve"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	account, err := ms.GetUserByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("expected an account after approval: %v", err)
	}
	if account.Role != "user" || account.Status != store.StatusApproved {
		t.Fatalf("expected approved member, got %+v", account)
	}

	// Re-approving conflicts and creates nothing.
	rr = doJSON(t, server, http.MethodPut, "/api/admin/applications/"+appID, admin, `{"action":"approve"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("re-approve: expected 409, got %d", rr.Code)
	}
	if len(ms.users) != 1 {
		t.Fatalf("re-approve must not duplicate accounts, have %d", len(ms.users))
	}

	// Login now succeeds.
	rr = doJSON(t, server, http.MethodPost, "/api/auth/login", "",
		`{"email":"a@x.com","password":"secret1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	aliceToken, _ := parseBody(t, rr)["token"].(string)
	if aliceToken == "" {
		t.Fatal("expected a token")
	}

	// Alice creates one public and one private map.
	rr = doJSON(t, server, http.MethodPost, "/api/mindmaps", aliceToken,
		`{"title":"Public","content":"# Public"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create public: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodPost, "/api/mindmaps", aliceToken,
		`{"title":"Private","content":"# Private","isPublic":false}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create private: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	privateEnvelope, _ := parseBody(t, rr)["mindMap"].(map[string]any)
	privateID, _ := privateEnvelope["id"].(string)

	// Anonymous listing sees the public map only.
	rr = doJSON(t, server, http.MethodGet, "/api/mindmaps", "", "")
	items, _ := parseBody(t, rr)["mindMaps"].([]any)
	if len(items) != 1 {
		t.Fatalf("anonymous listing: expected 1 map, got %d", len(items))
	}

	// Alice sees both.
	rr = doJSON(t, server, http.MethodGet, "/api/mindmaps", aliceToken, "")
	items, _ = parseBody(t, rr)["mindMaps"].([]any)
	if len(items) != 2 {
		t.Fatalf("owner listing: expected 2 maps, got %d", len(items))
	}

	// Another caller cannot read or mutate the private map.
	other := testToken(t, "user-999", "user")
	rr = doJSON(t, server, http.MethodGet, "/api/mindmaps/"+privateID, other, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("other GET private: expected 404, got %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodDelete, "/api/mindmaps/"+privateID, other, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("other DELETE private: expected 404, got %d", rr.Code)
	}

	// The owner can.
	rr = doJSON(t, server, http.MethodGet, "/api/mindmaps/"+privateID, aliceToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("owner GET private: expected 200, got %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodDelete, "/api/mindmaps/"+privateID, aliceToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("owner DELETE private: expected 200, got %d", rr.Code)
	}
}
