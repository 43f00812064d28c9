package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrSessionExpired = errors.New("session expired")

type LoginChecker struct {
	ttl         time.Duration
	redisClient *redis.Client
}

func NewLoginChecker(ttl time.Duration, redisClient *redis.Client) *LoginChecker {
	return &LoginChecker{
		ttl:         ttl,
		redisClient: redisClient,
	}
}

// GetSession resolves a token to the session identity behind it.
func (c *LoginChecker) GetSession(ctx context.Context, token string) (*Session, error) {
	cmd := c.redisClient.Get(ctx, sessionKeyPrefix+token)
	if err := cmd.Err(); err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal([]byte(cmd.Val()), &session); err != nil {
		return nil, err
	}

	if session.Expired(c.ttl) {
		return nil, ErrSessionExpired
	}

	return &session, nil
}

func (c *LoginChecker) IsLogged(ctx context.Context, token string) (bool, error) {
	if _, err := c.GetSession(ctx, token); err != nil {
		if errors.Is(err, ErrSessionExpired) || errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
