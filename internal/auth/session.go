package auth

import "time"

// Session is the identity held for the duration of a client session,
// resolved from the session token on every request.
type Session struct {
	Username  string `json:"username"`
	IsAdmin   bool   `json:"isAdmin"`
	CreatedAt int64  `json:"createdAt"`
}

func (s *Session) Expired(ttl time.Duration) bool {
	return time.Since(time.Unix(s.CreatedAt, 0)) > ttl
}
