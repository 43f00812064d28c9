//go:build integration_test || all_tests

package entries

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/mstanic/business-tracker/internal/accounts"
	"github.com/mstanic/business-tracker/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deleteAll(ctx context.Context, dbPool *pgxpool.Pool) error {
	if _, err := dbPool.Exec(ctx, `DELETE FROM form_entries`); err != nil {
		return err
	}
	_, err := dbPool.Exec(ctx, `DELETE FROM accounts`)
	return err
}

func testRepoSetup(t *testing.T) (*Repo, *accounts.Repo, func()) {
	t.Helper()

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	t.Logf("using postres host: %s", host)

	dbPool, err := db.NewDBPool(timeoutCtx, db.NewDBPoolParams{
		DBHost:         host,
		DBPort:         "5432",
		DBName:         "tracker_tests",
		TracingEnabled: false,
	})
	require.NoError(t, err)

	require.NoError(t, deleteAll(timeoutCtx, dbPool))

	return NewRepo(dbPool), accounts.NewRepo(dbPool), func() {
		dbPool.Close()
	}
}

func TestRepo_Submit(t *testing.T) {
	repo, accountsRepo, shutdown := testRepoSetup(t)
	defer shutdown()

	ctx := context.Background()

	_, err := accountsRepo.Add(ctx, "bane", "banepass")
	require.NoError(t, err)

	now := time.Now()
	addedEntry, err := repo.Submit(ctx, Entry{
		Username:  "bane",
		Revenue:   1250.5,
		TRL:       7,
		IP:        "pending",
		CreatedAt: now,
	})
	require.NoError(t, err)
	require.NotNil(t, addedEntry)
	assert.NotZero(t, addedEntry.ID)
	assert.Equal(t, "bane", addedEntry.Username)
	assert.Equal(t, 1250.5, addedEntry.Revenue)

	// submitting closed the form gate
	formOpen, err := accountsRepo.IsFormOpen(ctx, "bane")
	require.NoError(t, err)
	assert.False(t, formOpen)

	// entries stay immutable rows, a second submit just adds another one
	secondEntry, err := repo.Submit(ctx, Entry{
		Username:  "bane",
		Revenue:   99,
		TRL:       3,
		IP:        "granted",
		CreatedAt: now.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Greater(t, secondEntry.ID, addedEntry.ID)

	userEntries, err := repo.ListForUser(ctx, "bane")
	require.NoError(t, err)
	require.Len(t, userEntries, 2)

	_, err = repo.Submit(ctx, Entry{
		Revenue:   10,
		TRL:       1,
		IP:        "pending",
		CreatedAt: now,
	})
	require.Error(t, err)
}

func TestRepo_List_ordering(t *testing.T) {
	repo, accountsRepo, shutdown := testRepoSetup(t)
	defer shutdown()

	ctx := context.Background()

	_, err := accountsRepo.Add(ctx, "bane", "banepass")
	require.NoError(t, err)
	_, err = accountsRepo.Add(ctx, "ana", "anapass")
	require.NoError(t, err)

	now := time.Now()
	// inserted out of order on purpose
	for _, entry := range []Entry{
		{Username: "bane", Revenue: 30, TRL: 3, IP: "pending", CreatedAt: now},
		{Username: "ana", Revenue: 10, TRL: 1, IP: "granted", CreatedAt: now.Add(-2 * time.Hour)},
		{Username: "bane", Revenue: 20, TRL: 2, IP: "pending", CreatedAt: now.Add(-time.Hour)},
	} {
		_, err := repo.Submit(ctx, entry)
		require.NoError(t, err)
	}

	allEntries, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, allEntries, 3)
	// oldest first
	assert.Equal(t, float64(10), allEntries[0].Revenue)
	assert.Equal(t, float64(20), allEntries[1].Revenue)
	assert.Equal(t, float64(30), allEntries[2].Revenue)

	baneEntries, err := repo.ListForUser(ctx, "bane")
	require.NoError(t, err)
	require.Len(t, baneEntries, 2)
	assert.Equal(t, float64(20), baneEntries[0].Revenue)
	assert.Equal(t, float64(30), baneEntries[1].Revenue)

	ghostEntries, err := repo.ListForUser(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, ghostEntries)
}
