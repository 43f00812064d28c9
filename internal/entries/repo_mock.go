package entries

import (
	"context"
	"errors"
	"sort"

	"github.com/mstanic/business-tracker/internal/accounts"
)

type repoMock struct {
	entries    []Entry
	nextID     int
	accountsRe *accountsApiMock
}

func NewMockEntriesRepo(accountsApi *accountsApiMock) *repoMock {
	return &repoMock{
		nextID:     1,
		accountsRe: accountsApi,
	}
}

func (r *repoMock) Submit(_ context.Context, entry Entry) (*Entry, error) {
	if entry.Username == "" || entry.CreatedAt.IsZero() {
		return nil, errors.New("entry username or timestamp empty")
	}
	entry.ID = r.nextID
	r.nextID++
	r.entries = append(r.entries, entry)
	if r.accountsRe != nil {
		r.accountsRe.formOpen[entry.Username] = false
	}
	return &entry, nil
}

func (r *repoMock) ListForUser(_ context.Context, username string) ([]Entry, error) {
	var userEntries []Entry
	for _, e := range r.entries {
		if e.Username == username {
			userEntries = append(userEntries, e)
		}
	}
	sortByCreatedAt(userEntries)
	return userEntries, nil
}

func (r *repoMock) ListAll(_ context.Context) ([]Entry, error) {
	all := make([]Entry, len(r.entries))
	copy(all, r.entries)
	sortByCreatedAt(all)
	return all, nil
}

func sortByCreatedAt(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

type accountsApiMock struct {
	accounts []accounts.Account
	formOpen map[string]bool
}

func NewMockAccountsApi() *accountsApiMock {
	return &accountsApiMock{
		formOpen: make(map[string]bool),
	}
}

func (a *accountsApiMock) IsFormOpen(_ context.Context, username string) (bool, error) {
	return a.formOpen[username], nil
}

func (a *accountsApiMock) List(_ context.Context) ([]accounts.Account, error) {
	return a.accounts, nil
}

func (a *accountsApiMock) Usernames(_ context.Context) ([]string, error) {
	usernames := make([]string, 0, len(a.accounts))
	for _, acc := range a.accounts {
		usernames = append(usernames, acc.Username)
	}
	return usernames, nil
}
