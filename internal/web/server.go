package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/example/aove-scheduler/internal/account"
	"github.com/example/aove-scheduler/internal/auth"
	"github.com/example/aove-scheduler/internal/db"
	"github.com/example/aove-scheduler/internal/kv"
	"github.com/example/aove-scheduler/internal/notify"
	"github.com/example/aove-scheduler/internal/runs"
)

//go:embed templates/*.html static/*
var fs embed.FS

const (
	capturePath     = "/capture/records-id"
	recentRuns      = 50
	captureMaxBytes = 64 << 10
)

// Sessions is the login surface of auth.Store.
type Sessions interface {
	Authenticate(ctx context.Context, username, password string) (int64, error)
	SetSession(w http.ResponseWriter, r *http.Request, userID int64) error
	ClearSession(w http.ResponseWriter)
	RequireAuth(next http.Handler) http.Handler
}

// History is the read side of runs.Repo.
type History interface {
	Recent(ctx context.Context, limit int) ([]runs.Run, error)
	Get(ctx context.Context, id uuid.UUID) (runs.Run, []runs.Report, error)
}

type Server struct {
	Auth    Sessions
	Runs    History
	Store   kv.Store
	Notify  notify.Notifier
	Log     *zap.Logger
	// BaseURL is the externally reachable root, used to show the capture hook URL.
	BaseURL string
	// CaptureToken guards the capture hook; empty disables it.
	CaptureToken string
}

type accountRow struct {
	Index  int
	Label  string
	Masked string
}

type tmplData struct {
	Title string
	User  int64

	Flash      string
	Runs       []runs.Run
	Run        runs.Run
	Reports    []runs.Report
	Accounts   []accountRow
	CaptureURL string
}

func (s *Server) Routes() http.Handler {
	if s.Log == nil {
		s.Log = zap.NewNop()
	}
	r := mux.NewRouter()

	r.PathPrefix("/static/").Handler(http.FileServer(http.FS(fs)))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	r.HandleFunc(capturePath, s.handleCapture).Methods(http.MethodPost)

	r.HandleFunc("/login", s.handleLoginForm).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost, http.MethodGet)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.Auth.RequireAuth)
	authed.HandleFunc("/", s.handleHome).Methods(http.MethodGet)
	authed.HandleFunc("/runs/{id}", s.handleRun).Methods(http.MethodGet)
	authed.HandleFunc("/accounts", s.handleAccounts).Methods(http.MethodGet)
	authed.HandleFunc("/accounts", s.handleAccountsReplace).Methods(http.MethodPost)
	authed.HandleFunc("/accounts/add", s.handleAccountAdd).Methods(http.MethodPost)

	return r
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	rs, err := s.Runs.Recent(r.Context(), recentRuns)
	if err != nil {
		s.Log.Error("list runs", zap.Error(err))
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	s.render(w, "templates/runs.html", tmplData{Title: "Runs", User: uid, Runs: rs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	run, reps, err := s.Runs.Get(r.Context(), id)
	if db.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.Log.Error("get run", zap.Stringer("run", id), zap.Error(err))
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return
	}
	s.render(w, "templates/run.html", tmplData{Title: "Run " + run.StartedAt.Format("2006-01-02 15:04"), User: uid, Run: run, Reports: reps})
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, "templates/login.html", tmplData{Title: "Login"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	id, err := s.Auth.Authenticate(r.Context(), username, r.FormValue("password"))
	if err != nil {
		s.Log.Info("login failed", zap.String("username", username), zap.Error(err))
		s.render(w, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid username/password"})
		return
	}
	if err := s.Auth.SetSession(w, r, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) accountRows(ctx context.Context) ([]accountRow, string) {
	raw, ok, err := s.Store.Read(ctx, kv.KeyAccounts)
	if err != nil {
		s.Log.Error("read accounts", zap.Error(err))
		return nil, "Failed to read accounts"
	}
	if !ok {
		return nil, "No accounts configured yet"
	}
	accts, err := account.Parse(raw, s.Log)
	if err != nil {
		return nil, "Stored accounts are invalid: " + err.Error()
	}
	rows := make([]accountRow, 0, len(accts))
	for i, a := range accts {
		rows = append(rows, accountRow{Index: i + 1, Label: a.Label, Masked: a.Masked()})
	}
	return rows, ""
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	rows, flash := s.accountRows(r.Context())
	s.render(w, "templates/accounts.html", tmplData{Title: "Accounts", User: uid, Accounts: rows, Flash: flash, CaptureURL: s.captureURL()})
}

// captureURL is empty while the capture hook is disabled.
func (s *Server) captureURL() string {
	if s.CaptureToken == "" {
		return ""
	}
	return strings.TrimRight(s.BaseURL, "/") + capturePath
}

func (s *Server) handleAccountsReplace(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	accts, err := account.Parse(r.FormValue("accounts"), s.Log)
	if err != nil {
		s.accountsFlash(w, r, err.Error())
		return
	}
	s.saveAccounts(w, r, accts)
}

func (s *Server) handleAccountAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	token := strings.TrimSpace(r.FormValue("token"))
	label := strings.TrimSpace(r.FormValue("label"))
	if token == "" || label == "" || strings.ContainsAny(token+label, "@|") {
		s.accountsFlash(w, r, "Token and label are required and must not contain @ or |")
		return
	}

	var accts []account.Account
	if raw, ok, err := s.Store.Read(r.Context(), kv.KeyAccounts); err != nil {
		s.Log.Error("read accounts", zap.Error(err))
		http.Error(w, "failed to read accounts", http.StatusInternalServerError)
		return
	} else if ok {
		if err := account.Check(raw); err != nil {
			s.accountsFlash(w, r, "Stored accounts have a malformed "+err.Error()+"; fix them with Replace all before adding")
			return
		}
		// Check passed, so Parse only fails on an all-blank list
		accts, _ = account.Parse(raw, s.Log)
	}
	s.saveAccounts(w, r, append(accts, account.Account{Token: token, Label: label}))
}

func (s *Server) saveAccounts(w http.ResponseWriter, r *http.Request, accts []account.Account) {
	if err := s.Store.Write(r.Context(), kv.KeyAccounts, account.Format(accts)); err != nil {
		s.Log.Error("write accounts", zap.Error(err))
		http.Error(w, "failed to save accounts", http.StatusInternalServerError)
		return
	}
	s.Log.Info("accounts updated", zap.Int("count", len(accts)))
	http.Redirect(w, r, "/accounts", http.StatusFound)
}

func (s *Server) accountsFlash(w http.ResponseWriter, r *http.Request, flash string) {
	uid, _ := auth.UserIDFromContext(r.Context())
	rows, _ := s.accountRows(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	s.render(w, "templates/accounts.html", tmplData{Title: "Accounts", User: uid, Accounts: rows, Flash: flash, CaptureURL: s.captureURL()})
}

// handleCapture receives the body of an intercepted registration request
// and stores its recordsId.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if !auth.TokenEqual(s.CaptureToken, r.Header.Get("X-Capture-Token")) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, captureMaxBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := recordsID(body)
	if err != nil {
		s.Log.Warn("capture rejected", zap.Error(err))
		s.notify(r.Context(), notify.Message{Title: "RecordsId capture", Subtitle: "failed ❌", Body: err.Error()})
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if err := s.Store.Write(r.Context(), kv.KeyRecordsID, id); err != nil {
		s.Log.Error("store recordsId", zap.Error(err))
		s.notify(r.Context(), notify.Message{
			Title:    "RecordsId capture",
			Subtitle: "store failed ⚠️",
			Body:     "Could not write " + id + " to " + kv.KeyRecordsID,
		})
		http.Error(w, "store failed", http.StatusInternalServerError)
		return
	}
	s.Log.Info("recordsId captured", zap.String("recordsId", id))
	s.notify(r.Context(), notify.Message{
		Title:    "RecordsId capture",
		Subtitle: "captured 🎉",
		Body:     "Stored recordsId " + id + " under " + kv.KeyRecordsID,
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"recordsId": id})
}

var errNoRecordsID = errors.New(`no "recordsId" in request body`)

// recordsID accepts the id as a JSON string or number.
func recordsID(body []byte) (string, error) {
	var req struct {
		RecordsID json.RawMessage `json:"recordsId"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return "", fmt.Errorf("parse request body: %w", err)
	}
	raw := strings.TrimSpace(string(req.RecordsID))
	if raw == "" || raw == "null" {
		return "", errNoRecordsID
	}
	var str string
	if err := json.Unmarshal(req.RecordsID, &str); err == nil {
		if str = strings.TrimSpace(str); str == "" {
			return "", errNoRecordsID
		}
		return str, nil
	}
	var num json.Number
	if err := json.Unmarshal(req.RecordsID, &num); err == nil {
		return num.String(), nil
	}
	return "", errors.New("recordsId is neither a string nor a number")
}

func (s *Server) notify(ctx context.Context, msg notify.Message) {
	if s.Notify == nil {
		return
	}
	if err := s.Notify.Notify(ctx, msg); err != nil {
		s.Log.Warn("notification failed", zap.Error(err))
	}
}

func (s *Server) render(w http.ResponseWriter, name string, data tmplData) {
	t, err := template.New("").Funcs(funcs).ParseFS(fs,
		"templates/base.html",
		name,
	)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
	}
}

var funcs = template.FuncMap{
	"when": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05") },
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

func Start(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
