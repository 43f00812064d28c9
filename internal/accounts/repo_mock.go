package accounts

import (
	"context"
	"sort"
)

type repoMock struct {
	accounts map[string]*Account
}

func NewMockAccountsRepo() *repoMock {
	return &repoMock{
		accounts: make(map[string]*Account),
	}
}

func (r *repoMock) Add(_ context.Context, username, password string) (*Account, error) {
	if _, ok := r.accounts[username]; ok {
		return nil, ErrAccountExists
	}
	acc := &Account{
		Username: username,
		Password: password,
		FormOpen: true,
	}
	r.accounts[username] = acc
	return acc, nil
}

func (r *repoMock) Get(_ context.Context, username string) (*Account, error) {
	acc, ok := r.accounts[username]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

func (r *repoMock) PasswordHash(ctx context.Context, username string) (string, error) {
	acc, err := r.Get(ctx, username)
	if err != nil {
		return "", err
	}
	return acc.Password, nil
}

func (r *repoMock) List(_ context.Context) ([]Account, error) {
	var all []Account
	for _, acc := range r.accounts {
		all = append(all, *acc)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Username < all[j].Username
	})
	return all, nil
}

func (r *repoMock) Usernames(ctx context.Context) ([]string, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	usernames := make([]string, 0, len(all))
	for _, acc := range all {
		usernames = append(usernames, acc.Username)
	}
	return usernames, nil
}

func (r *repoMock) UpdateCredentials(_ context.Context, oldUsername, newUsername, newPassword string) error {
	acc, ok := r.accounts[oldUsername]
	if !ok {
		return ErrAccountNotFound
	}
	if oldUsername != newUsername {
		if _, taken := r.accounts[newUsername]; taken {
			return ErrUsernameTaken
		}
	}
	delete(r.accounts, oldUsername)
	acc.Username = newUsername
	acc.Password = newPassword
	r.accounts[newUsername] = acc
	return nil
}

func (r *repoMock) Delete(_ context.Context, username string) error {
	if IsProtected(username) {
		return ErrProtectedAccount
	}
	if _, ok := r.accounts[username]; !ok {
		return ErrAccountNotFound
	}
	delete(r.accounts, username)
	return nil
}

func (r *repoMock) SetFormOpen(_ context.Context, username string, open bool) error {
	acc, ok := r.accounts[username]
	if !ok {
		return ErrAccountNotFound
	}
	acc.FormOpen = open
	return nil
}

func (r *repoMock) IsFormOpen(_ context.Context, username string) (bool, error) {
	acc, ok := r.accounts[username]
	if !ok {
		return false, nil
	}
	return acc.FormOpen, nil
}
