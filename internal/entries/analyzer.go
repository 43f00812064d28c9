package entries

import (
	"context"
	"time"
)

// UserStats aggregates the submissions of one user for the admin overview.
type UserStats struct {
	Entries        int        `json:"entries"`
	LastSubmission *time.Time `json:"lastSubmission,omitempty"`
}

type entriesSource interface {
	ListAll(ctx context.Context) ([]Entry, error)
}

type Analyzer struct {
	repo entriesSource
}

func NewAnalyzer(repo entriesSource) *Analyzer {
	return &Analyzer{
		repo: repo,
	}
}

// PerUserStats returns entry counts and last submission dates per username.
// Usernames without entries are included with a zero count.
func (a *Analyzer) PerUserStats(ctx context.Context, usernames []string) (map[string]UserStats, error) {
	allEntries, err := a.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]UserStats, len(usernames))
	for _, username := range usernames {
		stats[username] = UserStats{}
	}

	for _, entry := range allEntries {
		userStats := stats[entry.Username]
		userStats.Entries++
		if userStats.LastSubmission == nil || entry.CreatedAt.After(*userStats.LastSubmission) {
			lastSubmission := entry.CreatedAt
			userStats.LastSubmission = &lastSubmission
		}
		stats[entry.Username] = userStats
	}

	return stats, nil
}
