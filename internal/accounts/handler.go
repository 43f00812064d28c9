package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mstanic/business-tracker/internal/auth"
	"github.com/mstanic/business-tracker/internal/telemetry/metrics"
	"github.com/mstanic/business-tracker/internal/telemetry/tracing"
	"github.com/mstanic/business-tracker/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

type accountsRepo interface {
	Add(ctx context.Context, username, password string) (*Account, error)
	List(ctx context.Context) ([]Account, error)
	Usernames(ctx context.Context) ([]string, error)
	UpdateCredentials(ctx context.Context, oldUsername, newUsername, newPassword string) error
	Delete(ctx context.Context, username string) error
	SetFormOpen(ctx context.Context, username string, open bool) error
	IsFormOpen(ctx context.Context, username string) (bool, error)
}

type ListResponse struct {
	Accounts []Account `json:"accounts"`
	Total    int       `json:"total"`
}

type Handler struct {
	repo         accountsRepo
	loginChecker auth.Checker
	metrics      *metrics.Manager
}

func NewHandler(
	repo accountsRepo,
	loginChecker auth.Checker,
	metrics *metrics.Manager,
) *Handler {
	return &Handler{
		repo:         repo,
		loginChecker: loginChecker,
		metrics:      metrics,
	}
}

// SetupRoutes registers account management routes; all of them are
// admin-only, except the form gate check which users need themselves.
func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/accounts", handler.HandleCreate).Methods("POST", "OPTIONS").Name("new-account")
	router.HandleFunc("/accounts", handler.HandleList).Methods("GET", "OPTIONS").Name("list-accounts")
	router.HandleFunc("/accounts/usernames", handler.HandleUsernames).Methods("GET", "OPTIONS").Name("list-usernames")
	router.HandleFunc("/accounts/{username}", handler.HandleUpdateCredentials).Methods("PUT", "OPTIONS").Name("update-account")
	router.HandleFunc("/accounts/{username}", handler.HandleDelete).Methods("DELETE", "OPTIONS").Name("remove-account")
	router.HandleFunc("/accounts/{username}/form", handler.HandleSetFormOpen).Methods("PUT", "OPTIONS").Name("toggle-form")
	router.HandleFunc("/accounts/{username}/form", handler.HandleGetFormOpen).Methods("GET", "OPTIONS").Name("form-status")
}

func (handler *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.accounts.create")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	if handler.adminSession(w, r) == nil {
		span.SetStatus(codes.Error, "no-admin-session")
		return
	}

	type createRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	var createReq createRequest
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&createReq); err != nil {
			log.Tracef("new account, unmarshal json params: %s", err)
			http.Error(w, "create account failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("create account failed, parse form error: %s", err)
			http.Error(w, "parse form error", http.StatusInternalServerError)
			return
		}
		createReq = createRequest{
			Username: r.Form.Get("username"),
			Password: r.Form.Get("password"),
		}
	}

	if createReq.Username == "" || createReq.Password == "" {
		http.Error(w, "error, username or password empty", http.StatusBadRequest)
		return
	}

	addedAccount, err := handler.repo.Add(ctx, createReq.Username, createReq.Password)
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			http.Error(w, "error, account already exists", http.StatusConflict)
			return
		}
		log.Errorf("failed to create account [%s]: %s", createReq.Username, err)
		http.Error(w, "error, failed to create account", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterAccountsCreated.Inc()
	log.Printf("new account created: [%s]", addedAccount.Username)

	accountJson, err := json.Marshal(addedAccount)
	if err != nil {
		log.Errorf("marshal created account: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, accountJson, http.StatusCreated)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.accounts.list")
	defer span.End()

	if handler.adminSession(w, r) == nil {
		span.SetStatus(codes.Error, "no-admin-session")
		return
	}

	allAccounts, err := handler.repo.List(ctx)
	if err != nil {
		log.Errorf("list accounts error: %s", err)
		http.Error(w, "failed to get accounts", http.StatusInternalServerError)
		return
	}

	if len(allAccounts) == 0 {
		allAccounts = []Account{}
	}

	accountsJson, err := json.Marshal(ListResponse{
		Accounts: allAccounts,
		Total:    len(allAccounts),
	})
	if err != nil {
		log.Errorf("marshal accounts error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, accountsJson)
}

func (handler *Handler) HandleUsernames(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.accounts.usernames")
	defer span.End()

	if handler.adminSession(w, r) == nil {
		span.SetStatus(codes.Error, "no-admin-session")
		return
	}

	usernames, err := handler.repo.Usernames(ctx)
	if err != nil {
		log.Errorf("list usernames error: %s", err)
		http.Error(w, "failed to get usernames", http.StatusInternalServerError)
		return
	}

	if len(usernames) == 0 {
		usernames = []string{}
	}

	usernamesJson, err := json.Marshal(usernames)
	if err != nil {
		log.Errorf("marshal usernames error: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, usernamesJson)
}

func (handler *Handler) HandleUpdateCredentials(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.accounts.updateCredentials")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "PUT, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	if handler.adminSession(w, r) == nil {
		span.SetStatus(codes.Error, "no-admin-session")
		return
	}

	oldUsername := mux.Vars(r)["username"]
	if oldUsername == "" {
		http.Error(w, "error, username empty", http.StatusBadRequest)
		return
	}

	type updateRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	var updateReq updateRequest
	if err := json.NewDecoder(r.Body).Decode(&updateReq); err != nil {
		log.Tracef("update account, unmarshal json params: %s", err)
		http.Error(w, "update account failed", http.StatusBadRequest)
		return
	}

	if updateReq.Username == "" || updateReq.Password == "" {
		http.Error(w, "error, username or password empty", http.StatusBadRequest)
		return
	}

	err := handler.repo.UpdateCredentials(ctx, oldUsername, updateReq.Username, updateReq.Password)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		http.Error(w, "error, account not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrUsernameTaken):
		http.Error(w, "error, username already taken", http.StatusConflict)
		return
	case err != nil:
		log.Errorf("failed to update account [%s]: %s", oldUsername, err)
		http.Error(w, "error, failed to update account", http.StatusInternalServerError)
		return
	}

	log.Printf("account updated: [%s] -> [%s]", oldUsername, updateReq.Username)
	pkg.WriteResponse(w, "", fmt.Sprintf("updated:%s", updateReq.Username), http.StatusOK)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.accounts.delete")
	defer span.End()

	if handler.adminSession(w, r) == nil {
		span.SetStatus(codes.Error, "no-admin-session")
		return
	}

	username := mux.Vars(r)["username"]
	if username == "" {
		http.Error(w, "error, username empty", http.StatusBadRequest)
		return
	}

	err := handler.repo.Delete(ctx, username)
	switch {
	case errors.Is(err, ErrProtectedAccount):
		http.Error(w, "error, default accounts cannot be deleted", http.StatusForbidden)
		return
	case errors.Is(err, ErrAccountNotFound):
		http.Error(w, "error, account not found", http.StatusNotFound)
		return
	case err != nil:
		log.Errorf("failed to delete account [%s]: %s", username, err)
		http.Error(w, "error, failed to delete account", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterAccountsDeleted.Inc()
	log.Printf("account deleted: [%s]", username)
	pkg.WriteResponse(w, "", fmt.Sprintf("deleted:%s", username), http.StatusOK)
}

func (handler *Handler) HandleSetFormOpen(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.accounts.setFormOpen")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "PUT, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	if handler.adminSession(w, r) == nil {
		span.SetStatus(codes.Error, "no-admin-session")
		return
	}

	username := mux.Vars(r)["username"]
	if username == "" {
		http.Error(w, "error, username empty", http.StatusBadRequest)
		return
	}

	type toggleRequest struct {
		Open bool `json:"open"`
	}

	var toggleReq toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&toggleReq); err != nil {
		log.Tracef("toggle form, unmarshal json params: %s", err)
		http.Error(w, "toggle form failed", http.StatusBadRequest)
		return
	}

	err := handler.repo.SetFormOpen(ctx, username, toggleReq.Open)
	switch {
	case errors.Is(err, ErrAccountNotFound):
		http.Error(w, "error, account not found", http.StatusNotFound)
		return
	case err != nil:
		log.Errorf("failed to toggle form for [%s]: %s", username, err)
		http.Error(w, "error, failed to toggle form", http.StatusInternalServerError)
		return
	}

	log.Printf("form for [%s] set to open=%t", username, toggleReq.Open)
	pkg.WriteJSONResponseOK(w, fmt.Sprintf(`{"username":"%s","formOpen":%t}`, username, toggleReq.Open))
}

// HandleGetFormOpen is reachable for any logged-in identity: users poll
// their own gate before showing the form.
func (handler *Handler) HandleGetFormOpen(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.accounts.formStatus")
	defer span.End()

	session := handler.session(w, r)
	if session == nil {
		span.SetStatus(codes.Error, "no-session")
		return
	}

	username := mux.Vars(r)["username"]
	if username == "" {
		http.Error(w, "error, username empty", http.StatusBadRequest)
		return
	}

	if !session.IsAdmin && session.Username != username {
		http.Error(w, "no can do", http.StatusForbidden)
		return
	}

	formOpen, err := handler.repo.IsFormOpen(ctx, username)
	if err != nil {
		log.Errorf("form gate check for [%s]: %s", username, err)
		http.Error(w, "failed to get form status", http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONResponseOK(w, fmt.Sprintf(`{"username":"%s","formOpen":%t}`, username, formOpen))
}

func (handler *Handler) session(w http.ResponseWriter, r *http.Request) *auth.Session {
	session, err := handler.loginChecker.GetSession(r.Context(), r.Header.Get(auth.SessionTokenHeader))
	if err != nil {
		log.Tracef("[invalid session] [accounts handler] unauthorized => %s", r.URL.Path)
		http.Error(w, "no can do", http.StatusUnauthorized)
		return nil
	}
	return session
}

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
