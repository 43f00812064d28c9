package accounts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mstanic/business-tracker/internal/auth"
	"github.com/mstanic/business-tracker/internal/telemetry/metrics"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain will run goleak after all tests have been run in the package
// to detect any goroutine leaks
func TestMain(m *testing.M) {
	m.Run()
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

const (
	adminToken = "admin-token"
	userToken  = "user-token"
)

func testSetup() (*Handler, *repoMock) {
	loginChecker := auth.NewLoginTestChecker()
	loginChecker.LoggedSessions[adminToken] = &auth.Session{
		Username:  "admin",
		IsAdmin:   true,
		CreatedAt: time.Now().Unix(),
	}
	loginChecker.LoggedSessions[userToken] = &auth.Session{
		Username:  "mstanic",
		IsAdmin:   false,
		CreatedAt: time.Now().Unix(),
	}

	repo := NewMockAccountsRepo()
	handler := NewHandler(repo, loginChecker, metrics.NewTestManager())
	return handler, repo
}

func TestHandler_Create(t *testing.T) {
	handler, repo := testSetup()

	reqBody, err := json.Marshal(map[string]string{
		"username": "newcomer",
		"password": "s3cret",
	})
	require.NoError(t, err)

	// no session
	req, err := http.NewRequest("POST", "/accounts", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.HandleCreate(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// non-admin session
	req, err = http.NewRequest("POST", "/accounts", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.SessionTokenHeader, userToken)
	rr = httptest.NewRecorder()
	handler.HandleCreate(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	// admin session
	req, err = http.NewRequest("POST", "/accounts", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.SessionTokenHeader, adminToken)
	rr = httptest.NewRecorder()
	handler.HandleCreate(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created Account
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "newcomer", created.Username)
	assert.True(t, created.FormOpen)
	assert.NotContains(t, rr.Body.String(), "password")

	acc, err := repo.Get(context.Background(), "newcomer")
	require.NoError(t, err)
	assert.True(t, acc.FormOpen)

	// same username again
	req, err = http.NewRequest("POST", "/accounts", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.SessionTokenHeader, adminToken)
	rr = httptest.NewRecorder()
	handler.HandleCreate(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandler_Create_emptyParams(t *testing.T) {
	handler, _ := testSetup()

	reqBody, err := json.Marshal(map[string]string{
		"username": "lonely",
	})
	require.NoError(t, err)

	req, err := http.NewRequest("POST", "/accounts", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.SessionTokenHeader, adminToken)
	rr := httptest.NewRecorder()
	handler.HandleCreate(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_List(t *testing.T) {
	handler, repo := testSetup()

	ctx := context.Background()
	_, err := repo.Add(ctx, "bane", "pass1")
	require.NoError(t, err)
	_, err = repo.Add(ctx, "ana", "pass2")
	require.NoError(t, err)

	req, err := http.NewRequest("GET", "/accounts", nil)
	require.NoError(t, err)
	req.Header.Set(auth.SessionTokenHeader, userToken)
	rr := httptest.NewRecorder()
	handler.HandleList(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	req, err = http.NewRequest("GET", "/accounts", nil)
	require.NoError(t, err)
	req.Header.Set(auth.SessionTokenHeader, adminToken)
	rr = httptest.NewRecorder()
	handler.HandleList(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var listResp ListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listResp))
	require.Equal(t, 2, listResp.Total)
	// sorted by username
	assert.Equal(t, "ana", listResp.Accounts[0].Username)
	assert.Equal(t, "bane", listResp.Accounts[1].Username)
}

func TestHandler_Usernames(t *testing.T) {
	handler, repo := testSetup()

	ctx := context.Background()
	_, err := repo.Add(ctx, "bane", "pass1")
	require.NoError(t, err)
	_, err = repo.Add(ctx, "ana", "pass2")
	require.NoError(t, err)

	req, err := http.NewRequest("GET", "/accounts/usernames", nil)
	require.NoError(t, err)
	req.Header.Set(auth.SessionTokenHeader, adminToken)
	rr := httptest.NewRecorder()
	handler.HandleUsernames(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var usernames []string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &usernames))
	assert.Equal(t, []string{"ana", "bane"}, usernames)
}

func TestHandler_UpdateCredentials(t *testing.T) {
	handler, repo := testSetup()

	ctx := context.Background()
	_, err := repo.Add(ctx, "bane", "pass1")
	require.NoError(t, err)
	_, err = repo.Add(ctx, "ana", "pass2")
	require.NoError(t, err)

	newCreds, err := json.Marshal(map[string]string{
		"username": "bane2",
		"password": "newpass",
	})
	require.NoError(t, err)

	req, err := http.NewRequest("PUT", "/accounts/bane", bytes.NewReader(newCreds))
	require.NoError(t, err)
	req.Header.Set(auth.SessionTokenHeader, adminToken)
	req = mux.SetURLVars(req, map[string]string{"username": "bane"})
	rr := httptest.NewRecorder()
	handler.HandleUpdateCredentials(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "updated:bane2", rr.Body.String())

	_, err = repo.Get(ctx, "bane")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	renamed, err := repo.Get(ctx, "bane2")
	require.NoError(t, err)
	assert.Equal(t, "newpass", renamed.Password)

	// renaming onto an existing username
	takenCreds, err := json.Marshal(map[string]string{
		"username": "ana",
		"password": "whatever",
	})
	require.NoError(t, err)
	req, err = http.NewRequest("PUT", "/accounts/bane2", bytes.NewReader(takenCreds))
	require.NoError(t, err)
	req.Header.Set(auth.SessionTokenHeader, adminToken)
	req = mux.SetURLVars(req, map[string]string{"username": "bane2"})
	rr = httptest.NewRecorder()
	handler.HandleUpdateCredentials(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)

	// unknown account
	req, err = http.NewRequest("PUT", "/accounts/ghost", bytes.NewReader(newCreds))
	require.NoError(t, err)
	req.Header.Set(auth.SessionTokenHeader, adminToken)
	req = mux.SetURLVars(req, map[string]string{"username": "ghost"})
	rr = httptest.NewRecorder()
	handler.HandleUpdateCredentials(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_Delete(t *testing.T) {
	handler, repo := testSetup()

	ctx := context.Background()
	_, err := repo.Add(ctx, "bane", "pass1")
	require.NoError(t, err)
	_, err = repo.Add(ctx, "admin", "admin")
	require.NoError(t, err)

	for _, protected := range []string{"admin", "test"} {
		req, err := http.NewRequest("DELETE", fmt.Sprintf("/accounts/%s", protected), nil)
		require.NoError(t, err)
		req.Header.Set(auth.SessionTokenHeader, adminToken)
		req = mux.SetURLVars(req, map[string]string{"username": protected})
		rr := httptest.NewRecorder()
		handler.HandleDelete(rr, req)
		require.Equal(t, http.StatusForbidden, rr.Code)
	}

	req, err := http.NewRequest("DELETE", "/accounts/ghost", nil)
	require.NoError(t, err)
	req.Header.Set(auth.SessionTokenHeader, adminToken)
	req = mux.SetURLVars(req, map[string]string{"username": "ghost"})
	rr := httptest.NewRecorder()
	handler.HandleDelete(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)

	req, err = http.NewRequest("DELETE", "/accounts/bane", nil)
	require.NoError(t, err)
	req.Header.Set(auth.SessionTokenHeader, adminToken)
	req = mux.SetURLVars(req, map[string]string{"username": "bane"})
	rr = httptest.NewRecorder()
	handler.HandleDelete(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "deleted:bane", rr.Body.String())

	_, err = repo.Get(ctx, "bane")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestHandler_FormOpen(t *testing.T) {
	handler, repo := testSetup()

	ctx := context.Background()
	_, err := repo.Add(ctx, "mstanic", "pass1")
	require.NoError(t, err)

	// close the gate as admin
	reqBody, err := json.Marshal(map[string]bool{"open": false})
	require.NoError(t, err)
	req, err := http.NewRequest("PUT", "/accounts/mstanic/form", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set(auth.SessionTokenHeader, adminToken)
	req = mux.SetURLVars(req, map[string]string{"username": "mstanic"})
	rr := httptest.NewRecorder()
	handler.HandleSetFormOpen(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `{"username":"mstanic","formOpen":false}`, rr.Body.String())

	// the user can check their own gate
	req, err = http.NewRequest("GET", "/accounts/mstanic/form", nil)
	require.NoError(t, err)
	req.Header.Set(auth.SessionTokenHeader, userToken)
	req = mux.SetURLVars(req, map[string]string{"username": "mstanic"})
	rr = httptest.NewRecorder()
	handler.HandleGetFormOpen(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `{"username":"mstanic","formOpen":false}`, rr.Body.String())

	// but not somebody else's
	req, err = http.NewRequest("GET", "/accounts/admin/form", nil)
	require.NoError(t, err)
	req.Header.Set(auth.SessionTokenHeader, userToken)
	req = mux.SetURLVars(req, map[string]string{"username": "admin"})
	rr = httptest.NewRecorder()
	handler.HandleGetFormOpen(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	// setting the gate is admin only
	req, err = http.NewRequest("PUT", "/accounts/mstanic/form", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set(auth.SessionTokenHeader, userToken)
	req = mux.SetURLVars(req, map[string]string{"username": "mstanic"})
	rr = httptest.NewRecorder()
	handler.HandleSetFormOpen(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	// gate of an unknown account
	req, err = http.NewRequest("PUT", "/accounts/ghost/form", bytes.NewReader(reqBody))
	require.NoError(t, err)
	req.Header.Set(auth.SessionTokenHeader, adminToken)
	req = mux.SetURLVars(req, map[string]string{"username": "ghost"})
	rr = httptest.NewRecorder()
	handler.HandleSetFormOpen(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
