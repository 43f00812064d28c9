package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mstanic/business-tracker/pkg"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultTTL       = 24 * 7 * time.Hour
	sessionKeyPrefix = "business-tracker-session||"
	tokensSetKey     = "business-tracker-sessions"

	AdminUsername = "admin"
)

// ErrWrongCredentials is returned for unknown usernames and wrong
// passwords alike, so a failed login does not reveal which one it was
var ErrWrongCredentials = errors.New("wrong credentials")

type Credentials struct {
	Username string
	Password string
}

// CredentialsStore resolves a username to its stored bcrypt password hash
type CredentialsStore interface {
	PasswordHash(ctx context.Context, username string) (string, error)
}

type Service struct {
	credentials     CredentialsStore
	adminSecretHash string
	redisClient     *redis.Client
	ttl             time.Duration
	// ability to inject random string generator func for tokens (for unit and dev testing)
	RandStringFunc func(s int) (string, error)
}

func NewService(
	credentials CredentialsStore,
	adminSecretHash string,
	ttl time.Duration,
	redisClient *redis.Client,
) *Service {
	return &Service{
		credentials:     credentials,
		adminSecretHash: adminSecretHash,
		ttl:             ttl,
		redisClient:     redisClient,
		RandStringFunc:  pkg.GenerateRandomString,
	}
}

// Login verifies user credentials against the account store and, on
// success, creates a new session and returns its token.
func (as *Service) Login(ctx context.Context, credentials Credentials, createdAt time.Time) (string, error) {
	passwordHash, err := as.credentials.PasswordHash(ctx, credentials.Username)
	if err != nil {
		log.Tracef("failed login attempt for user [%s]: %s", credentials.Username, err)
		return "", ErrWrongCredentials
	}

	if !pkg.CheckPasswordHash(credentials.Password, passwordHash) {
		log.Tracef("failed login attempt for user [%s]: wrong password", credentials.Username)
		return "", ErrWrongCredentials
	}

	return as.newSession(ctx, Session{
		Username:  credentials.Username,
		CreatedAt: createdAt.Unix(),
	})
}

// AdminLogin grants an admin session iff the given password matches the
// one shared admin secret. Kept as a migration shim: callers depend on
// the single-secret contract.
func (as *Service) AdminLogin(ctx context.Context, password string, createdAt time.Time) (string, error) {
	if !pkg.CheckPasswordHash(password, as.adminSecretHash) {
		log.Trace("failed admin login attempt")
		return "", ErrWrongCredentials
	}

	return as.newSession(ctx, Session{
		Username:  AdminUsername,
		IsAdmin:   true,
		CreatedAt: createdAt.Unix(),
	})
}

func (as *Service) newSession(ctx context.Context, session Session) (string, error) {
	token, err := as.RandStringFunc(35)
	if err != nil {
		return "", err
	}

	sessionJson, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	sessionKey := sessionKeyPrefix + token
	if err := as.redisClient.Set(ctx, sessionKey, sessionJson, 0).Err(); err != nil {
		return "", err
	}

	// add token to the set of all sessions
	if err := as.redisClient.SAdd(ctx, tokensSetKey, token).Err(); err != nil {
		return "", err
	}

	return token, nil
}

// Logout removes the session behind the given token.
func (as *Service) Logout(ctx context.Context, token string) (bool, error) {
	sessionKey := sessionKeyPrefix + token
	if err := as.redisClient.Get(ctx, sessionKey).Err(); err != nil {
		return false, err
	}

	if err := as.redisClient.Del(ctx, sessionKey).Err(); err != nil {
		return false, err
	}

	// remove token from the set of all sessions
	if err := as.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
		return false, err
	}

	return true, nil
}

// ScanAndClean will run through all sessions, check the TTL, and clean them if old
func (as *Service) ScanAndClean(ctx context.Context) {
	cmd := as.redisClient.SMembers(ctx, tokensSetKey)
	if err := cmd.Err(); err != nil {
		log.Errorf("session sweep, get sessions: %s", err)
		return
	}

	sessionTokens := cmd.Val()
	if len(sessionTokens) == 0 {
		log.Debugln("session sweep: no sessions")
		return
	}

	log.Debugf("session sweep over %d sessions ...", len(sessionTokens))
	var toRemove []string
	for _, token := range sessionTokens {
		sessionKey := sessionKeyPrefix + token
		cmd := as.redisClient.Get(ctx, sessionKey)
		if err := cmd.Err(); err != nil {
			log.Errorf("session sweep, get token %s: %s", token, err)
			continue
		}

		var session Session
		if err := json.Unmarshal([]byte(cmd.Val()), &session); err != nil {
			log.Errorf("session sweep, unmarshal token %s: %s", token, err)
			toRemove = append(toRemove, token)
			continue
		}

		if session.Expired(as.ttl) {
			toRemove = append(toRemove, token)
		}
	}

	if len(toRemove) > 0 {
		log.Debugf("session sweep: removing %d expired sessions", len(toRemove))
	}

	for _, token := range toRemove {
		sessionKey := sessionKeyPrefix + token
		if err := as.redisClient.Del(ctx, sessionKey).Err(); err != nil {
			log.Errorf("session sweep, clean token %s: %s", token, err)
			continue
		}

		if err := as.redisClient.SRem(ctx, tokensSetKey, token).Err(); err != nil {
			log.Errorf("session sweep, clean token %s: %s", token, err)
			continue
		}
	}
}
