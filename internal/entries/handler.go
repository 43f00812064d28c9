package entries

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mstanic/business-tracker/internal/accounts"
	"github.com/mstanic/business-tracker/internal/auth"
	"github.com/mstanic/business-tracker/internal/telemetry/metrics"
	"github.com/mstanic/business-tracker/internal/telemetry/tracing"
	"github.com/mstanic/business-tracker/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const exportVersion = "1.0"

type entriesRepo interface {
	Submit(ctx context.Context, entry Entry) (*Entry, error)
	ListForUser(ctx context.Context, username string) ([]Entry, error)
	ListAll(ctx context.Context) ([]Entry, error)
}

type accountsApi interface {
	IsFormOpen(ctx context.Context, username string) (bool, error)
	List(ctx context.Context) ([]accounts.Account, error)
	Usernames(ctx context.Context) ([]string, error)
}

type SubmitResponse struct {
	Entry
	FormOpen bool `json:"formOpen"`
}

type ListResponse struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
}

// ExportDocument is the JSON backup format downloaded by admins.
type ExportDocument struct {
	FormData   []Entry            `json:"formData"`
	Accounts   []accounts.Account `json:"accounts"`
	ExportDate string             `json:"exportDate"`
	Version    string             `json:"version"`
}

type Handler struct {
	repo         entriesRepo
	accounts     accountsApi
	analyzer     *Analyzer
	loginChecker auth.Checker
	metrics      *metrics.Manager
}

func NewHandler(
	repo entriesRepo,
	accountsApi accountsApi,
	loginChecker auth.Checker,
	metrics *metrics.Manager,
) *Handler {
	return &Handler{
		repo:         repo,
		accounts:     accountsApi,
		analyzer:     NewAnalyzer(repo),
		loginChecker: loginChecker,
		metrics:      metrics,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/entries", handler.HandleSubmit).Methods("POST", "OPTIONS").Name("new-entry")
	router.HandleFunc("/entries", handler.HandleListAll).Methods("GET", "OPTIONS").Name("list-entries")
	router.HandleFunc("/entries/user/{username}", handler.HandleUserEntries).Methods("GET", "OPTIONS").Name("user-entries")
	router.HandleFunc("/entries/stats", handler.HandleStats).Methods("GET", "OPTIONS").Name("entries-stats")
	router.HandleFunc("/export", handler.HandleExport).Methods("GET", "OPTIONS").Name("export")
}

// HandleSubmit checks the form gate before submitting: the repo Submit
// itself would happily insert with the gate closed.
func (handler *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.entries.submit")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	session := handler.session(w, r)
	if session == nil {
		span.SetStatus(codes.Error, "no-session")
		return
	}
	span.SetAttributes(attribute.String("user.name", session.Username))

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	type submitRequest struct {
		Revenue float64 `json:"revenue"`
		TRL     int     `json:"trl"`
		IP      string  `json:"ip"`
	}

	var submitReq submitRequest
	if err := json.NewDecoder(r.Body).Decode(&submitReq); err != nil {
		log.Tracef("new entry, unmarshal json params: %s", err)
		http.Error(w, "submit entry failed", http.StatusBadRequest)
		return
	}

	if submitReq.TRL < TRLMin || submitReq.TRL > TRLMax {
		http.Error(w, "error, trl must be between 1 and 9", http.StatusBadRequest)
		return
	}
	if submitReq.IP == "" {
		http.Error(w, "error, ip status empty", http.StatusBadRequest)
		return
	}

	formOpen, err := handler.accounts.IsFormOpen(ctx, session.Username)
	if err != nil {
		log.Errorf("submit entry, form gate check for [%s]: %s", session.Username, err)
		http.Error(w, "submit entry failed", http.StatusInternalServerError)
		return
	}
	if !formOpen {
		span.SetStatus(codes.Error, "form-closed")
		http.Error(w, "error, form is closed", http.StatusForbidden)
		return
	}

	addedEntry, err := handler.repo.Submit(ctx, Entry{
		Username:  session.Username,
		Revenue:   submitReq.Revenue,
		TRL:       submitReq.TRL,
		IP:        submitReq.IP,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Errorf("failed to submit entry for [%s]: %s", session.Username, err)
		http.Error(w, "error, failed to submit entry", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterSubmissions.Inc()
	log.Printf("new entry submitted for [%s]: %d", addedEntry.Username, addedEntry.ID)

	respJson, err := json.Marshal(SubmitResponse{
		Entry:    *addedEntry,
		FormOpen: false,
	})
	if err != nil {
		log.Errorf("marshal submitted entry: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusCreated)
}

func (handler *Handler) HandleUserEntries(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.entries.userEntries")
	defer span.End()

	session := handler.session(w, r)
	if session == nil {
		span.SetStatus(codes.Error, "no-session")
		return
	}

	vars := mux.Vars(r)
	username := vars["username"]
	if username == "" {
		http.Error(w, "error, username empty", http.StatusBadRequest)
		return
	}

	// users see their own entries, admins see anyone's
	if !session.IsAdmin && session.Username != username {
		http.Error(w, "no can do", http.StatusForbidden)
		return
	}

	userEntries, err := handler.repo.ListForUser(ctx, username)
	if err != nil {
		log.Errorf("list entries for [%s]: %s", username, err)
		http.Error(w, "failed to get entries", http.StatusInternalServerError)
		return
	}

	handler.writeListResponse(w, userEntries)
}

func (handler *Handler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.entries.listAll")
	defer span.End()

	if handler.adminSession(w, r) == nil {
		span.SetStatus(codes.Error, "no-admin-session")
		return
	}

	allEntries, err := handler.repo.ListAll(ctx)
	if err != nil {
		log.Errorf("list all entries: %s", err)
		http.Error(w, "failed to get entries", http.StatusInternalServerError)
		return
	}

	handler.writeListResponse(w, allEntries)
}

func (handler *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.entries.stats")
	defer span.End()

	if handler.adminSession(w, r) == nil {
		span.SetStatus(codes.Error, "no-admin-session")
		return
	}

	usernames, err := handler.accounts.Usernames(ctx)
	if err != nil {
		log.Errorf("entries stats, get usernames: %s", err)
		http.Error(w, "failed to get stats", http.StatusInternalServerError)
		return
	}

	stats, err := handler.analyzer.PerUserStats(ctx, usernames)
	if err != nil {
		log.Errorf("entries stats: %s", err)
		http.Error(w, "failed to get stats", http.StatusInternalServerError)
		return
	}

	statsJson, err := json.Marshal(stats)
	if err != nil {
		log.Errorf("marshal entries stats: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, statsJson)
}

// HandleExport produces the JSON backup document with all entries and
// accounts, served as a file download.
func (handler *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.entries.export")
	defer span.End()

	if handler.adminSession(w, r) == nil {
		span.SetStatus(codes.Error, "no-admin-session")
		return
	}

	allEntries, err := handler.repo.ListAll(ctx)
	if err != nil {
		log.Errorf("export, list entries: %s", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	if len(allEntries) == 0 {
		allEntries = []Entry{}
	}

	allAccounts, err := handler.accounts.List(ctx)
	if err != nil {
		log.Errorf("export, list accounts: %s", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	if len(allAccounts) == 0 {
		allAccounts = []accounts.Account{}
	}

	now := time.Now().UTC()
	exportJson, err := json.MarshalIndent(ExportDocument{
		FormData:   allEntries,
		Accounts:   allAccounts,
		ExportDate: now.Format(time.RFC3339),
		Version:    exportVersion,
	}, "", "  ")
	if err != nil {
		log.Errorf("marshal export document: %s", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}

	fileName := fmt.Sprintf("business-tracker-data-%s.json", now.Format("2006-01-02"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", fileName))
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, exportJson)
}

func (handler *Handler) writeListResponse(w http.ResponseWriter, listedEntries []Entry) {
	if len(listedEntries) == 0 {
		listedEntries = []Entry{}
	}

	entriesJson, err := json.Marshal(ListResponse{
		Entries: listedEntries,
		Total:   len(listedEntries),
	})
	if err != nil {
		log.Errorf("marshal entries: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, entriesJson)
}

// session resolves the request session or writes a 401 and returns nil.
func (handler *Handler) session(w http.ResponseWriter, r *http.Request) *auth.Session {
	session, err := handler.loginChecker.GetSession(r.Context(), r.Header.Get(auth.SessionTokenHeader))
	if err != nil {
		log.Tracef("[invalid session] [entries handler] unauthorized => %s", r.URL.Path)
		http.Error(w, "no can do", http.StatusUnauthorized)
		return nil
	}
	return session
}

// adminSession is like session but also requires the admin role,
// writing a 403 for non-admin identities.
func (handler *Handler) adminSession(w http.ResponseWriter, r *http.Request) *auth.Session {
	session := handler.session(w, r)
	if session == nil {
		return nil
	}
	if !session.IsAdmin {
		http.Error(w, "no can do", http.StatusForbidden)
		return nil
	}
	return session
}
