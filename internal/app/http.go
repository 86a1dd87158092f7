package app

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"mindmapai/api/internal/authpw"
	"mindmapai/api/internal/rbac"
	"mindmapai/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	debug      bool
	logger     *zap.Logger
}

// NewHTTPServer wires handlers around the service. debug controls whether
// error responses carry the internal detail field.
func NewHTTPServer(service *Service, corsOrigin string, debug bool, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, debug: debug, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		status := s.service.Health(r.Context())
		code := http.StatusOK
		if !status.OK {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/register" {
		s.handleRegister(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/mindmaps/search" {
		s.handleSearch(w, r)
		return
	}

	if r.URL.Path == "/api/mindmaps" {
		switch r.Method {
		case http.MethodGet:
			s.handleListMindMaps(w, r)
		case http.MethodPost:
			s.handleCreateMindMap(w, r)
		default:
			s.fail(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/generate" {
		s.handleGenerate(w, r)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "mindmaps" {
		s.handleMindMap(w, r, parts[2])
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "admin" {
		s.handleAdmin(w, r, parts[2:])
		return
	}

	s.fail(w, http.StatusNotFound, "not found")
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
		Reason   string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	application, err := s.service.Register(r.Context(), authpw.RegisterRequest{
		Email:    body.Email,
		Username: body.Username,
		Password: body.Password,
		Reason:   body.Reason,
	})
	if err != nil {
		s.error(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":     "application submitted, awaiting admin approval",
		"application": applicationJSON(application),
	})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	token, user, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		s.error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  userJSON(user),
	})
}

func (s *HTTPServer) handleListMindMaps(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	maps, err := s.service.ListMindMaps(r.Context(), caller)
	if err != nil {
		s.error(w, err)
		return
	}
	items := make([]map[string]any, 0, len(maps))
	for _, m := range maps {
		items = append(items, mindMapMetaJSON(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"mindMaps": items})
}

func (s *HTTPServer) handleCreateMindMap(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	input, err := decodeMindMapInput(r)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.service.CreateMindMap(r.Context(), caller, input)
	if err != nil {
		s.error(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"mindMap": mindMapJSON(created)})
}

func (s *HTTPServer) handleMindMap(w http.ResponseWriter, r *http.Request, id string) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		m, err := s.service.GetMindMap(r.Context(), caller, id)
		if err != nil {
			s.error(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"mindMap": mindMapJSON(m)})

	case http.MethodPut:
		input, err := decodeMindMapInput(r)
		if err != nil {
			s.fail(w, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := s.service.UpdateMindMap(r.Context(), caller, id, input)
		if err != nil {
			s.error(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"mindMap": mindMapJSON(updated)})

	case http.MethodDelete:
		if err := s.service.DeleteMindMap(r.Context(), caller, id); err != nil {
			s.error(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		s.fail(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.fail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.fail(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	writeJSON(w, http.StatusOK, s.service.SearchMindMaps(caller, q, limit, offset))
}

func (s *HTTPServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Topic string `json:"topic"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	content, err := s.service.GenerateMindMap(r.Context(), body.Topic)
	if err != nil {
		s.error(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": content})
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, parts []string) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	if parts[0] == "users" {
		if len(parts) == 1 && r.Method == http.MethodGet {
			users, err := s.service.ListUsers(r.Context(), caller)
			if err != nil {
				s.error(w, err)
				return
			}
			items := make([]map[string]any, 0, len(users))
			for _, u := range users {
				items = append(items, userJSON(u))
			}
			writeJSON(w, http.StatusOK, map[string]any{"users": items})
			return
		}

		if len(parts) == 2 && r.Method == http.MethodPut {
			var body struct {
				Role   *string `json:"role"`
				Status *string `json:"status"`
			}
			if err := decodeBody(r, &body); err != nil {
				s.fail(w, http.StatusBadRequest, err.Error())
				return
			}
			updated, err := s.service.UpdateUser(r.Context(), caller, parts[1], body.Role, body.Status)
			if err != nil {
				s.error(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"user": userJSON(updated)})
			return
		}

		if len(parts) == 2 && r.Method == http.MethodDelete {
			if err := s.service.DeleteUser(r.Context(), caller, parts[1]); err != nil {
				s.error(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	if parts[0] == "applications" {
		if len(parts) == 1 && r.Method == http.MethodGet {
			applications, err := s.service.ListApplications(r.Context(), caller)
			if err != nil {
				s.error(w, err)
				return
			}
			items := make([]map[string]any, 0, len(applications))
			for _, a := range applications {
				items = append(items, applicationJSON(a))
			}
			writeJSON(w, http.StatusOK, map[string]any{"applications": items})
			return
		}

		if len(parts) == 2 && r.Method == http.MethodPut {
			var body struct {
				Action string `json:"action"`
			}
			if err := decodeBody(r, &body); err != nil {
				s.fail(w, http.StatusBadRequest, err.Error())
				return
			}
			processed, err := s.service.ProcessApplication(r.Context(), caller, parts[1], body.Action)
			if err != nil {
				s.error(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"application": applicationJSON(processed)})
			return
		}
	}

	s.fail(w, http.StatusNotFound, "not found")
}

// caller resolves the request's bearer token. A missing token yields an
// anonymous caller; a present but invalid token is rejected outright.
func (s *HTTPServer) caller(w http.ResponseWriter, r *http.Request) (rbac.Caller, bool) {
	c, err := s.service.CallerFromToken(bearerToken(r))
	if err != nil {
		s.error(w, err)
		return rbac.Caller{}, false
	}
	return c, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// fail writes a plain client error from the routing layer.
func (s *HTTPServer) fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// error maps a service error onto the wire. Internal detail is only attached
// outside production.
func (s *HTTPServer) error(w http.ResponseWriter, err error) {
	status, message, debug := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	body := map[string]any{"error": message}
	if s.debug && debug != "" {
		body["debug"] = debug
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func decodeMindMapInput(r *http.Request) (MindMapInput, error) {
	var body struct {
		Title       string  `json:"title"`
		Description *string `json:"description"`
		Content     string  `json:"content"`
		IsPublic    *bool   `json:"isPublic"`
	}
	if err := decodeBody(r, &body); err != nil {
		return MindMapInput{}, err
	}
	return MindMapInput{
		Title:       body.Title,
		Description: body.Description,
		Content:     body.Content,
		IsPublic:    body.IsPublic,
	}, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func userJSON(u store.User) map[string]any {
	return map[string]any{
		"id":        u.ID,
		"email":     u.Email,
		"username":  u.Username,
		"role":      u.Role,
		"status":    string(u.Status),
		"language":  string(u.Language),
		"createdAt": u.CreatedAt.UnixMilli(),
	}
}

func applicationJSON(a store.Application) map[string]any {
	return map[string]any{
		"id":        a.ID,
		"email":     a.Email,
		"username":  a.Username,
		"reason":    a.Reason,
		"status":    string(a.Status),
		"createdAt": a.CreatedAt.UnixMilli(),
	}
}

func mindMapJSON(m store.MindMap) map[string]any {
	payload := mindMapMetaJSON(m)
	payload["content"] = m.Content
	return payload
}

// mindMapMetaJSON omits content: listings carry metadata only.
func mindMapMetaJSON(m store.MindMap) map[string]any {
	return map[string]any{
		"id":          m.ID,
		"userId":      m.UserID,
		"title":       m.Title,
		"description": m.Description,
		"isPublic":    m.IsPublic,
		"createdAt":   m.CreatedAt.UnixMilli(),
		"updatedAt":   m.UpdatedAt.UnixMilli(),
	}
}
