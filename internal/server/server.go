// Package server exposes the application over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"refbook/internal/app"
	"refbook/internal/database"
	"refbook/internal/ratelimit"
	"refbook/internal/util"
	"refbook/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	AllowedOrigins []string
	TrustedProxies *util.TrustedProxies
	LoginLimiter   *ratelimit.FixedWindowLimiter
	CreateLimiter  *ratelimit.FixedWindowLimiter
}

// Server exposes the refbook HTTP API.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	allowedOrigins []string
	trustedProxies *util.TrustedProxies
	loginLimiter   *ratelimit.FixedWindowLimiter
	createLimiter  *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		allowedOrigins: cfg.AllowedOrigins,
		trustedProxies: cfg.TrustedProxies,
		loginLimiter:   cfg.LoginLimiter,
		createLimiter:  cfg.CreateLimiter,
	}
	s.routes()
	return s
}

// Router returns the handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var handler http.Handler = s.mux
	handler = util.WithCORS(s.allowedOrigins, handler)
	handler = util.WithSecurityHeaders(handler)
	handler = util.WithRequestLog(handler)
	handler = util.WithRequestID(handler)
	return handler
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// users
	s.mux.HandleFunc("/api/user/create", s.handleCreateUser)
	s.mux.HandleFunc("/api/user/login", s.handleLogin)
	s.mux.HandleFunc("/api/user/logout", s.handleLogout)
	s.mux.Handle("/api/user/me", s.authenticated(s.handleMe))
	s.mux.Handle("/api/user", s.authenticated(s.handleUser))
	s.mux.Handle("/api/user/book", s.authenticated(s.handleUserBook))

	// books
	s.mux.Handle("/api/book", s.authenticated(s.handleCreateBook))
	s.mux.Handle("/api/book/", s.authenticated(s.handleBookByID))

	// chat histories
	s.mux.Handle("/api/chat/", s.authenticated(s.handleChat))

	// admin
	s.mux.Handle("/api/admin/clean_db", s.authenticated(s.handleCleanDB))
	s.mux.Handle("/api/admin/backup", s.authenticated(s.handleBackup))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok := s.app.UserFromToken(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) allow(limiter *ratelimit.FixedWindowLimiter, r *http.Request) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(util.ClientIP(r, s.trustedProxies))
}

// user handlers
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(s.createLimiter, r) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.app.CreateUser(req.Username, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, userView(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(s.loginLimiter, r) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Username, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user":         userView(user),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		slog.Error("logout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	detail, err := s.app.UserDetail(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"user":   userView(user),
		"detail": detail,
	})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.DeleteUser(user); err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (s *Server) handleUserBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req bookRefRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.BookID) == "" {
		writeFailed(w, http.StatusBadRequest, "book_id is required")
		return
	}
	switch r.Method {
	case http.MethodPost:
		if err := s.app.AttachBook(user, req.BookID); err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]string{"message": "book attached"})
	case http.MethodDelete:
		if err := s.app.DetachBook(user, req.BookID); err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]string{"message": "book detached"})
	default:
		methodNotAllowed(w)
	}
}

// book handlers
func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var book domain.Book
	if err := decodeBody(r, &book); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := s.app.CreateBook(book)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, created)
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/book/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		book, err := s.app.Book(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, book)
	case http.MethodDelete:
		if err := s.app.DeleteBook(id); err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]string{"message": "book deleted"})
	default:
		methodNotAllowed(w)
	}
}

// chat handlers
//
// Paths under /api/chat/:
//
//	GET    /api/chat/{history_id}                       full history
//	GET    /api/chat/{history_id}/message?index=N       message by position
//	POST   /api/chat/{history_id}/message               append message
//	GET    /api/chat/{history_id}/message/{message_id}  message by id
//	DELETE /api/chat/{history_id}/message/{message_id}  remove message
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/chat/")
	parts := strings.Split(rest, "/")
	historyID := parts[0]
	if historyID == "" {
		http.NotFound(w, r)
		return
	}
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		history, err := s.app.ChatHistory(user, historyID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, history)
	case len(parts) == 2 && parts[1] == "message":
		s.handleChatMessages(w, r, user, historyID)
	case len(parts) == 3 && parts[1] == "message" && parts[2] != "":
		s.handleChatMessageByID(w, r, user, historyID, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request, user domain.User, historyID string) {
	switch r.Method {
	case http.MethodGet:
		raw := r.URL.Query().Get("index")
		if raw == "" {
			writeFailed(w, http.StatusBadRequest, "index query parameter is required")
			return
		}
		index, err := strconv.Atoi(raw)
		if err != nil {
			writeFailed(w, http.StatusBadRequest, "index must be an integer")
			return
		}
		message, err := s.app.ChatMessageByIndex(user, historyID, index)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, message)
	case http.MethodPost:
		var req chatMessageRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		message, err := s.app.AddChatMessage(user, historyID, domain.Role(req.Role), req.Content)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, message)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleChatMessageByID(w http.ResponseWriter, r *http.Request, user domain.User, historyID, messageID string) {
	switch r.Method {
	case http.MethodGet:
		message, err := s.app.ChatMessageByID(user, historyID, messageID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, message)
	case http.MethodDelete:
		if err := s.app.DeleteChatMessage(user, historyID, messageID); err != nil {
			writeAppError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]string{"message": "message deleted"})
	default:
		methodNotAllowed(w)
	}
}

// admin handlers
func (s *Server) handleCleanDB(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.CleanDatabase(); err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"message": "database cleaned"})
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	prefix, err := s.app.Backup(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"prefix": prefix})
}

// request/response plumbing

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type bookRefRequest struct {
	BookID string `json:"book_id"`
}

type chatMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// userView hides the password hash from API responses.
func userView(user domain.User) map[string]any {
	return map[string]any{
		"id":             user.ID,
		"username":       user.Username,
		"user_detail_id": user.UserDetailID,
	}
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// writeAppError maps application and repository errors to HTTP responses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		writeFailed(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrUsernameAndPasswordRequired):
		writeFailed(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrHistoryNotOwned):
		writeFailed(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrDebugOnly):
		writeFailed(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrBackupNotConfigured):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		switch database.KindOf(err) {
		case database.KindNotFound:
			writeFailed(w, http.StatusNotFound, err.Error())
		case database.KindValidation:
			writeFailed(w, http.StatusBadRequest, err.Error())
		case database.KindDuplicate:
			writeFailed(w, http.StatusConflict, err.Error())
		case database.KindInvalidData, database.KindDependency:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			slog.Error("unhandled application error", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSuccess wraps data in the {"type": "success"} envelope.
func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"type": "success", "data": data})
}

// writeFailed reports a rejected request the client can correct.
func writeFailed(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"type": "failed", "message": msg})
}

// writeError reports a server-side or protocol failure.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"type": "error", "message": msg})
}
