package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mindmapai/api/internal/auth"
	"mindmapai/api/internal/authpw"
	"mindmapai/api/internal/config"
	"mindmapai/api/internal/rbac"
	"mindmapai/api/internal/search"
	"mindmapai/api/internal/store"
)

// dataStore is the persistence surface the service depends on.
type dataStore interface {
	Ping(ctx context.Context) error
	SchemaPresent(ctx context.Context) (bool, error)

	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	UserExists(ctx context.Context, email, username string) (bool, error)
	InsertUser(ctx context.Context, user store.User) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	UpdateUserRoleStatus(ctx context.Context, id string, role *string, status *store.Status) (store.User, error)
	DeleteUser(ctx context.Context, id string) (bool, error)
	CountUsers(ctx context.Context) (int, error)

	ApplicationExists(ctx context.Context, email, username string) (bool, error)
	InsertApplication(ctx context.Context, application store.Application) (store.Application, error)
	ListPendingApplications(ctx context.Context) ([]store.Application, error)
	GetApplication(ctx context.Context, id string) (store.Application, error)
	SetApplicationStatus(ctx context.Context, id string, status store.Status) error

	ListMindMaps(ctx context.Context, callerID string) ([]store.MindMap, error)
	GetMindMap(ctx context.Context, id string) (store.MindMap, error)
	InsertMindMap(ctx context.Context, m store.MindMap) (store.MindMap, error)
	UpdateMindMap(ctx context.Context, id, ownerID, title string, description *string, content string, isPublic bool) (store.MindMap, error)
	DeleteMindMap(ctx context.Context, id, ownerID string) (bool, error)
}

// mapSearcher indexes and queries mind maps. nil disables the search endpoint
// gracefully (empty results).
type mapSearcher interface {
	Search(q search.Query) search.Response
	IndexMap(record search.MapRecord)
	DeleteMap(id string)
}

// mapGenerator produces Markdown from a topic.
type mapGenerator interface {
	MindMap(ctx context.Context, topic string) (string, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	passwords *authpw.Service
	searcher  mapSearcher
	generator mapGenerator
	logger    *zap.Logger
}

func New(cfg config.Config, st dataStore, searcher mapSearcher, generator mapGenerator, logger *zap.Logger) *Service {
	return &Service{
		cfg:       cfg,
		store:     st,
		passwords: authpw.NewService(st),
		searcher:  searcher,
		generator: generator,
		logger:    logger,
	}
}

// CallerFromToken resolves a bearer token into an access-control caller.
// An empty token is an anonymous caller, not an error.
func (s *Service) CallerFromToken(token string) (rbac.Caller, error) {
	if token == "" {
		return rbac.Anonymous(), nil
	}
	identity, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return rbac.Caller{}, err
	}
	role, err := rbac.ParseRole(identity.Role)
	if err != nil {
		return rbac.Caller{}, auth.ErrInvalidToken
	}
	return rbac.Identified(identity.UserID, role), nil
}

// Register submits a registration application.
func (s *Service) Register(ctx context.Context, req authpw.RegisterRequest) (store.Application, error) {
	return s.passwords.Register(ctx, req)
}

// Login authenticates an approved account and issues a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (string, store.User, error) {
	user, err := s.passwords.Login(ctx, email, password)
	if err != nil {
		return "", store.User{}, err
	}
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		Role:     user.Role,
		Language: string(user.Language),
	}, time.Now().Add(s.cfg.TokenTTL))
	if err != nil {
		return "", store.User{}, fmt.Errorf("issue token: %w", err)
	}
	return token, user, nil
}

// MindMapInput is the client-supplied representation of a mind map. IsPublic
// defaults to visible when absent, matching creation defaults.
type MindMapInput struct {
	Title       string
	Description *string
	Content     string
	IsPublic    *bool
}

func (in MindMapInput) validate() error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Content) == "" {
		return domainError(http.StatusBadRequest, "title and content are required")
	}
	return nil
}

func (in MindMapInput) public() bool {
	if in.IsPublic == nil {
		return true
	}
	return *in.IsPublic
}

// ListMindMaps returns metadata for every map the caller may see, public maps
// plus the caller's own, newest-updated first.
func (s *Service) ListMindMaps(ctx context.Context, caller rbac.Caller) ([]store.MindMap, error) {
	return s.store.ListMindMaps(ctx, caller.UserID)
}

// GetMindMap returns a single map. Private maps of other users answer 404.
func (s *Service) GetMindMap(ctx context.Context, caller rbac.Caller, id string) (store.MindMap, error) {
	m, err := s.store.GetMindMap(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.MindMap{}, domainError(http.StatusNotFound, "mind map not found")
		}
		return store.MindMap{}, err
	}
	ownerID := ""
	if m.UserID != nil {
		ownerID = *m.UserID
	}
	if d := rbac.CanView(caller, ownerID, m.IsPublic); d != rbac.Allow {
		return store.MindMap{}, decisionError(d, "mind map")
	}
	return m, nil
}

// CreateMindMap stores a new map owned by the caller.
func (s *Service) CreateMindMap(ctx context.Context, caller rbac.Caller, in MindMapInput) (store.MindMap, error) {
	if !caller.Authenticated() {
		return store.MindMap{}, domainError(http.StatusUnauthorized, "authentication required")
	}
	if err := in.validate(); err != nil {
		return store.MindMap{}, err
	}

	ownerID := caller.UserID
	created, err := s.store.InsertMindMap(ctx, store.MindMap{
		ID:          uuid.NewString(),
		UserID:      &ownerID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Content:     in.Content,
		IsPublic:    in.public(),
	})
	if err != nil {
		return store.MindMap{}, err
	}
	s.indexMap(created)
	return created, nil
}

// UpdateMindMap replaces a map the caller owns. The store filters on both id
// and owner so a non-owner cannot tell the map exists.
func (s *Service) UpdateMindMap(ctx context.Context, caller rbac.Caller, id string, in MindMapInput) (store.MindMap, error) {
	if !caller.Authenticated() {
		return store.MindMap{}, domainError(http.StatusUnauthorized, "authentication required")
	}
	if err := in.validate(); err != nil {
		return store.MindMap{}, err
	}

	updated, err := s.store.UpdateMindMap(ctx, id, caller.UserID, strings.TrimSpace(in.Title), in.Description, in.Content, in.public())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.MindMap{}, domainError(http.StatusNotFound, "mind map not found")
		}
		return store.MindMap{}, err
	}
	s.indexMap(updated)
	return updated, nil
}

// DeleteMindMap removes a map the caller owns.
func (s *Service) DeleteMindMap(ctx context.Context, caller rbac.Caller, id string) error {
	if !caller.Authenticated() {
		return domainError(http.StatusUnauthorized, "authentication required")
	}
	deleted, err := s.store.DeleteMindMap(ctx, id, caller.UserID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "mind map not found")
	}
	if s.searcher != nil {
		s.searcher.DeleteMap(id)
	}
	return nil
}

func (s *Service) indexMap(m store.MindMap) {
	if s.searcher == nil {
		return
	}
	ownerID := ""
	if m.UserID != nil {
		ownerID = *m.UserID
	}
	description := ""
	if m.Description != nil {
		description = *m.Description
	}
	s.searcher.IndexMap(search.MapRecord{
		ID:          m.ID,
		Title:       m.Title,
		Description: description,
		OwnerID:     ownerID,
		IsPublic:    m.IsPublic,
	})
}

// SearchMindMaps queries the search layer, restricted to public maps plus the
// caller's own.
func (s *Service) SearchMindMaps(caller rbac.Caller, text string, limit, offset int) search.Response {
	if s.searcher == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.searcher.Search(search.Query{
		Text:     strings.TrimSpace(text),
		CallerID: caller.UserID,
		Limit:    limit,
		Offset:   offset,
	})
}

// GenerateMindMap relays a topic to the AI backend and returns Markdown. The
// endpoint is open to anonymous callers; the generated text is not persisted.
func (s *Service) GenerateMindMap(ctx context.Context, topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", domainError(http.StatusBadRequest, "topic is required")
	}
	content, err := s.generator.MindMap(ctx, topic)
	if err != nil {
		return "", &DomainError{
			Status:  http.StatusInternalServerError,
			Message: "mind map generation failed",
			Debug:   err.Error(),
		}
	}
	return content, nil
}

// ListUsers returns every account, newest first. Admin only.
func (s *Service) ListUsers(ctx context.Context, caller rbac.Caller) ([]store.User, error) {
	if d := rbac.RequireAdmin(caller); d != rbac.Allow {
		return nil, decisionError(d, "user")
	}
	return s.store.ListUsers(ctx)
}

// UpdateUser changes a subset of {role, status} on an account. Admin only.
func (s *Service) UpdateUser(ctx context.Context, caller rbac.Caller, id string, role, status *string) (store.User, error) {
	if d := rbac.RequireAdmin(caller); d != rbac.Allow {
		return store.User{}, decisionError(d, "user")
	}
	if role == nil && status == nil {
		return store.User{}, domainError(http.StatusBadRequest, "role or status is required")
	}

	var roleValue *string
	if role != nil {
		parsed, err := rbac.ParseRole(*role)
		if err != nil {
			return store.User{}, domainError(http.StatusBadRequest, "invalid role")
		}
		v := string(parsed)
		roleValue = &v
	}
	var statusValue *store.Status
	if status != nil {
		parsed, err := store.ParseStatus(*status)
		if err != nil {
			return store.User{}, domainError(http.StatusBadRequest, "invalid status")
		}
		statusValue = &parsed
	}

	updated, err := s.store.UpdateUserRoleStatus(ctx, id, roleValue, statusValue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, domainError(http.StatusNotFound, "user not found")
		}
		return store.User{}, err
	}
	return updated, nil
}

// DeleteUser removes an account and, by cascade, its maps. Admin only. An
// admin cannot delete their own account.
func (s *Service) DeleteUser(ctx context.Context, caller rbac.Caller, id string) error {
	if d := rbac.RequireAdmin(caller); d != rbac.Allow {
		return decisionError(d, "user")
	}
	if id == caller.UserID {
		return domainError(http.StatusBadRequest, "cannot delete your own account")
	}
	deleted, err := s.store.DeleteUser(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "user not found")
	}
	return nil
}

// ListApplications returns pending registration applications, newest first.
// Admin only.
func (s *Service) ListApplications(ctx context.Context, caller rbac.Caller) ([]store.Application, error) {
	if d := rbac.RequireAdmin(caller); d != rbac.Allow {
		return nil, decisionError(d, "application")
	}
	return s.store.ListPendingApplications(ctx)
}

// ProcessApplication approves or rejects a pending application. Approval is a
// unit of work: create the account, then mark the application approved. A
// retry after a partial failure hits the unique constraint on users, which is
// treated as the account already existing, so the mark still proceeds.
func (s *Service) ProcessApplication(ctx context.Context, caller rbac.Caller, id, action string) (store.Application, error) {
	if d := rbac.RequireAdmin(caller); d != rbac.Allow {
		return store.Application{}, decisionError(d, "application")
	}
	if action != "approve" && action != "reject" {
		return store.Application{}, domainError(http.StatusBadRequest, "action must be approve or reject")
	}

	application, err := s.store.GetApplication(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Application{}, domainError(http.StatusNotFound, "application not found")
		}
		return store.Application{}, err
	}
	if application.Status != store.StatusPending {
		return store.Application{}, domainError(http.StatusConflict, "application already "+string(application.Status))
	}

	if action == "reject" {
		if err := s.store.SetApplicationStatus(ctx, id, store.StatusRejected); err != nil {
			return store.Application{}, err
		}
		application.Status = store.StatusRejected
		return application, nil
	}

	_, err = s.store.InsertUser(ctx, store.User{
		Email:        application.Email,
		Username:     application.Username,
		PasswordHash: application.PasswordHash,
		Role:         string(rbac.RoleMember),
		Status:       store.StatusApproved,
		Language:     store.LanguageZH,
	})
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return store.Application{}, err
	}
	if errors.Is(err, store.ErrDuplicate) {
		s.logger.Info("account already exists for application, marking approved",
			zap.String("application_id", id))
	}

	if err := s.store.SetApplicationStatus(ctx, id, store.StatusApproved); err != nil {
		return store.Application{}, err
	}
	application.Status = store.StatusApproved
	return application, nil
}

// Bootstrap seeds the first admin account when the users table is empty and
// admin credentials are configured.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.cfg.AdminEmail == "" || s.cfg.AdminPassword == "" {
		return nil
	}
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := authpw.HashPassword(s.cfg.AdminPassword)
	if err != nil {
		return err
	}
	admin, err := s.store.InsertUser(ctx, store.User{
		Email:        s.cfg.AdminEmail,
		Username:     s.cfg.AdminUsername,
		PasswordHash: hash,
		Role:         string(rbac.RoleAdmin),
		Status:       store.StatusApproved,
		Language:     store.LanguageZH,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("seed admin: %w", err)
	}
	s.logger.Info("seeded admin account", zap.String("email", admin.Email))
	return nil
}

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	OK       bool   `json:"ok"`
	Database string `json:"database"`
	Schema   bool   `json:"schema"`
}

// Health probes database connectivity and schema presence. Probe failures
// degrade the payload, they never fail the request.
func (s *Service) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{OK: true, Database: "ok"}
	if err := s.store.Ping(ctx); err != nil {
		status.OK = false
		status.Database = "unreachable"
		return status
	}
	present, err := s.store.SchemaPresent(ctx)
	if err != nil {
		s.logger.Warn("schema probe failed", zap.Error(err))
		return status
	}
	status.Schema = present
	return status
}
