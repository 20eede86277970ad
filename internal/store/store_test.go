package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/seven-days-calm/internal/config"
	"github.com/ashureev/seven-days-calm/internal/domain"
)

func backends(t *testing.T) map[string]Repository {
	t.Helper()
	sqliteStore, err := NewSQLite(filepath.Join(t.TempDir(), "calm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Repository{
		"memory": NewMemory(),
		"sqlite": sqliteStore,
	}
}

func TestRepositoryContract(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := repo.GetUser(ctx, "missing")
			require.NoError(t, err)
			assert.Nil(t, got)

			now := time.Unix(1_700_000_000, 0)
			user := domain.NewUser("u1", now)
			user.Challenge.CurrentDay = 3
			user.Prefs["voice"] = "soft"
			user.AddReminder(domain.Reminder{Time: "13:00", Label: "7 Days to Calm"})
			require.NoError(t, repo.UpsertUser(ctx, user))

			got, err = repo.GetUser(ctx, "u1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, 3, got.Challenge.CurrentDay)
			assert.Equal(t, "soft", got.Prefs["voice"])
			assert.Equal(t, []domain.Reminder{{Time: "13:00", Label: "7 Days to Calm"}}, got.Reminders)
			assert.True(t, got.CreatedAt.Equal(now))

			got.Challenge.CurrentDay = 5
			again, err := repo.GetUser(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 3, again.Challenge.CurrentDay, "returned record must not alias stored state")

			again.Challenge.CurrentDay = 6
			again.Challenge.LastCompletedDay = 5
			require.NoError(t, repo.UpsertUser(ctx, again))
			final, err := repo.GetUser(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, domain.ChallengeProgress{CurrentDay: 6, LastCompletedDay: 5}, final.Challenge)

			assert.NoError(t, repo.Ping(ctx))
		})
	}
}

func TestUpdateUserContract(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			user, err := repo.UpdateUser(ctx, "u1", func(u *domain.User) error {
				u.Challenge.CurrentDay = 2
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, 2, user.Challenge.CurrentDay)

			_, err = repo.UpdateUser(ctx, "u1", func(u *domain.User) error {
				u.Challenge.CurrentDay = 5
				return errors.New("rejected")
			})
			require.EqualError(t, err, "rejected")

			stored, err := repo.GetUser(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 2, stored.Challenge.CurrentDay, "failed update must not be written")

			user, err = repo.UpdateUser(ctx, "u1", func(u *domain.User) error {
				u.Challenge.CurrentDay = 6
				return ErrNoChange
			})
			require.NoError(t, err)
			assert.Equal(t, 6, user.Challenge.CurrentDay)
			stored, err = repo.GetUser(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 2, stored.Challenge.CurrentDay, "ErrNoChange skips the write")

			created, err := repo.UpdateUser(ctx, "fresh", func(*domain.User) error { return ErrNoChange })
			require.NoError(t, err)
			require.NotNil(t, created)
			stored, err = repo.GetUser(ctx, "fresh")
			require.NoError(t, err)
			assert.NotNil(t, stored, "a missing record is created even when fn reports no change")
		})
	}
}

func TestUpdateUserSerializesConcurrentWriters(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const writers = 50

			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := repo.UpdateUser(ctx, "shared", func(u *domain.User) error {
						u.AddReminder(domain.Reminder{Time: "08:00", Label: fmt.Sprintf("label-%d", i)})
						return nil
					})
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			stored, err := repo.GetUser(ctx, "shared")
			require.NoError(t, err)
			assert.Len(t, stored.Reminders, writers)
		})
	}
}

func TestNewSelectsDriver(t *testing.T) {
	repo, err := New(&config.Config{StoreDriver: config.StoreMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, repo)

	repo, err = New(&config.Config{StoreDriver: config.StoreSQLite, DBPath: filepath.Join(t.TempDir(), "nested", "calm.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	assert.IsType(t, &SQLiteStore{}, repo)

	_, err = New(&config.Config{StoreDriver: "redis"})
	assert.Error(t, err)
}
