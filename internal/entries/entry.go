package entries

import "time"

// Entry is a single business metrics submission. Entries are immutable
// once created; they only disappear through an account delete cascade.
type Entry struct {
	ID       int     `json:"id"`
	Username string  `json:"username"`
	Revenue  float64 `json:"revenue"`
	// TRL is the Technology Readiness Level, 1 to 9
	TRL int `json:"trl"`
	// IP is a free text intellectual property status label
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"date"`
}

const (
	TRLMin = 1
	TRLMax = 9
)
