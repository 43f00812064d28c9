package auth

import (
	"context"
	"errors"
)

// LoginTestChecker is a Checker for usage in unit tests of handlers
type LoginTestChecker struct {
	LoggedSessions map[string]*Session
}

func NewLoginTestChecker() *LoginTestChecker {
	return &LoginTestChecker{
		LoggedSessions: make(map[string]*Session),
	}
}

func (c *LoginTestChecker) GetSession(_ context.Context, token string) (*Session, error) {
	session, ok := c.LoggedSessions[token]
	if !ok {
		return nil, errors.New("session not found")
	}
	return session, nil
}

func (c *LoginTestChecker) IsLogged(_ context.Context, token string) (bool, error) {
	_, ok := c.LoggedSessions[token]
	return ok, nil
}
