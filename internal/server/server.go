// Package server implements the remote endpoint: the HTTP surface that
// owns the authoritative copy of each user's task list. The sync
// coordinator is its only intended client.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"planner/internal/queue"
	"planner/internal/server/repo"
	"planner/internal/task"
)

// Config for the HTTP handler.
type Config struct {
	Repo      repo.Repo
	JWTSecret string

	// AllowSignUp gates account creation; sign-in keeps working when
	// this is off.
	AllowSignUp bool

	// Logger for request handling. Nil gets a no-op logger.
	Logger *zap.Logger

	// Now stamps server-assigned updated clocks; defaults to wall time.
	Now func() int64
}

// Server routes the planner sync API.
type Server struct {
	repo        repo.Repo
	jwtSecret   string
	allowSignUp bool
	logger      *zap.Logger
	now         func() int64
}

// New returns the HTTP handler exposing the sync API.
func New(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = func() int64 { return time.Now().UnixMilli() }
	}
	s := &Server{
		repo:        cfg.Repo,
		jwtSecret:   cfg.JWTSecret,
		allowSignUp: cfg.AllowSignUp,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Post("/sign-up", s.handleSignUp)
	r.Post("/sign-in", s.handleSignIn)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/tasks", s.handleListTasks)
		r.Post("/tasks/sync", s.handleSync)
	})

	return r
}

// handleListTasks returns the caller's tasks with updated strictly
// greater than the given watermark, or all tasks when no watermark is
// passed.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var after int64
	if raw := r.URL.Query().Get("updated"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid updated watermark")
			return
		}
		after = parsed
	}

	tasks, err := s.repo.ListUpdatedAfter(r.Context(), userID, after)
	if err != nil {
		s.logger.Error("failed to list tasks", zap.String("user", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleSync applies one queued mutation record: upsert-or-insert on
// update, delete-if-present on delete, keyed by task id scoped to the
// caller. Responds 204 with no body on success.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var rec queue.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if rec.ID == "" {
		writeError(w, http.StatusBadRequest, "no id")
		return
	}

	exists, err := s.repo.Exists(r.Context(), userID, rec.ID)
	if err != nil {
		s.logger.Error("failed to look up task", zap.String("id", rec.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch rec.Type {
	case queue.Update:
		if rec.Data == nil {
			writeError(w, http.StatusBadRequest, "no data")
			return
		}
		if exists {
			err = s.repo.Update(r.Context(), userID, rec.ID, *rec.Data)
		} else {
			err = s.repo.Insert(r.Context(), userID, insertDefaults(rec.ID, *rec.Data, s.now()))
		}
	case queue.Delete:
		if exists {
			err = s.repo.Delete(r.Context(), userID, rec.ID)
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown record type")
		return
	}

	if err != nil {
		s.logger.Error("failed to apply record",
			zap.String("id", rec.ID), zap.String("type", string(rec.Type)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// insertDefaults fills the missing fields of an upsert that targets a row
// the server has never seen: empty strings for name/date/period, current
// server time for updated, false/0 for complete/sort_order.
func insertDefaults(id string, f task.Fields, now int64) task.Task {
	t := task.Task{ID: id, Updated: now}
	if f.Name != nil {
		t.Name = *f.Name
	}
	if f.Date != nil {
		t.Date = *f.Date
	}
	if f.Period != nil {
		t.Period = *f.Period
	}
	if f.SortOrder != nil {
		t.SortOrder = *f.SortOrder
	}
	if f.Updated != 0 {
		t.Updated = f.Updated
	}
	return t
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if !s.allowSignUp {
		writeError(w, http.StatusForbidden, "not allowed")
		return
	}

	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), 12)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user := repo.User{ID: task.NewID(), Email: creds.Email, PasswordHash: string(hash)}
	if err := s.repo.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repo.ErrEmailTaken) {
			writeError(w, http.StatusBadRequest, "error creating account")
			return
		}
		s.logger.Error("failed to create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := issueToken(s.jwtSecret, user.ID)
	if err != nil {
		s.logger.Error("failed to issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "userId": user.ID})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	user, err := s.repo.UserByEmail(r.Context(), creds.Email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			writeError(w, http.StatusBadRequest, "error signing in")
			return
		}
		s.logger.Error("failed to read user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "error signing in")
		return
	}

	token, err := issueToken(s.jwtSecret, user.ID)
	if err != nil {
		s.logger.Error("failed to issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
