package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/seven-days-calm/internal/analytics"
	"github.com/ashureev/seven-days-calm/internal/domain"
	"github.com/ashureev/seven-days-calm/internal/store"
)

const uid = "test-user"

func intPtr(v int) *int { return &v }

type brokenRepo struct{ store.Repository }

func (brokenRepo) UpdateUser(context.Context, string, func(*domain.User) error) (*domain.User, error) {
	return nil, errors.New("disk on fire")
}

func TestSetChallengeDay(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)

	user, err := svc.SetChallengeDay(context.Background(), uid, SetChallengeDayInput{Day: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, user.Challenge.CurrentDay)
}

func TestSetChallengeDayRejectsOutOfRange(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)
	for _, d := range []int{0, 8, -1} {
		_, err := svc.SetChallengeDay(context.Background(), uid, SetChallengeDayInput{Day: intPtr(d)})
		require.Error(t, err, "day %d", d)
		assert.True(t, IsValidation(err), "day %d should be a validation error", d)
	}

	_, err := svc.SetChallengeDay(context.Background(), uid, SetChallengeDayInput{})
	assert.True(t, IsValidation(err))
}

func TestSetChallengeDayDoesNotCreateUserOnInvalidInput(t *testing.T) {
	repo := store.NewMemory()
	svc := NewService(repo, nil)

	_, err := svc.SetChallengeDay(context.Background(), uid, SetChallengeDayInput{Day: intPtr(9)})
	require.Error(t, err)

	user, err := repo.GetUser(context.Background(), uid)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestTrackEvent(t *testing.T) {
	rec := analytics.NewRecorder()
	svc := NewService(store.NewMemory(), rec)

	err := svc.TrackEvent(context.Background(), uid, TrackEventInput{Name: "em_day_complete", Payload: map[string]any{"day": 3}})
	require.NoError(t, err)

	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, "em_day_complete", last.Name)
	assert.Equal(t, uid, last.UserID)

	assert.True(t, IsValidation(svc.TrackEvent(context.Background(), uid, TrackEventInput{Name: "  "})))
}

func TestTrackEventSucceedsWhenSinkFails(t *testing.T) {
	svc := NewService(store.NewMemory(), analytics.Multi{failSink{}})
	assert.NoError(t, svc.TrackEvent(context.Background(), uid, TrackEventInput{Name: "em_convai_started"}))
}

type failSink struct{}

func (failSink) Push(domain.Event) error { return errors.New("queue full") }

func TestSetReminderIdempotent(t *testing.T) {
	repo := store.NewMemory()
	svc := NewService(repo, nil)
	in := SetReminderInput{Time: "13:00", Label: "7 Days to Calm"}

	_, err := svc.SetReminder(context.Background(), uid, in)
	require.NoError(t, err)
	user, err := svc.SetReminder(context.Background(), uid, in)
	require.NoError(t, err)
	assert.Len(t, user.Reminders, 1)

	stored, err := repo.GetUser(context.Background(), uid)
	require.NoError(t, err)
	assert.Len(t, stored.Reminders, 1)
}

func TestSetReminderConcurrentCallsKeepEveryInsert(t *testing.T) {
	sqliteRepo, err := store.NewSQLite(filepath.Join(t.TempDir(), "calm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteRepo.Close() })

	for name, repo := range map[string]store.Repository{"memory": store.NewMemory(), "sqlite": sqliteRepo} {
		t.Run(name, func(t *testing.T) {
			svc := NewService(repo, nil)
			const calls = 50

			var wg sync.WaitGroup
			for i := 0; i < calls; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := svc.SetReminder(context.Background(), uid, SetReminderInput{Time: "13:00", Label: fmt.Sprintf("break %d", i)})
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			user, err := repo.GetUser(context.Background(), uid)
			require.NoError(t, err)
			assert.Len(t, user.Reminders, calls)
		})
	}
}

func TestSetChallengeDayAndLogGoalDoNotClobber(t *testing.T) {
	repo := store.NewMemory()
	svc := NewService(repo, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.SetChallengeDay(ctx, uid, SetChallengeDayInput{Day: intPtr(4)})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.LogGoal(ctx, uid, 3, true)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	user, err := repo.GetUser(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeProgress{CurrentDay: 4, LastCompletedDay: 3}, user.Challenge)
}

func TestSetReminderValidation(t *testing.T) {
	svc := NewService(store.NewMemory(), nil)
	bad := []SetReminderInput{
		{Time: "1:00", Label: "x"},
		{Time: "24:00", Label: "x"},
		{Time: "12:60", Label: "x"},
		{Time: "noon", Label: "x"},
		{Time: "12:00", Label: ""},
	}
	for _, in := range bad {
		_, err := svc.SetReminder(context.Background(), uid, in)
		assert.True(t, IsValidation(err), "%+v should be rejected", in)
	}
}

func TestRepositoryErrorsAreNotValidation(t *testing.T) {
	svc := NewService(brokenRepo{}, nil)
	_, err := svc.SetChallengeDay(context.Background(), uid, SetChallengeDayInput{Day: intPtr(2)})
	require.Error(t, err)
	assert.False(t, IsValidation(err))
}

func TestLogGoal(t *testing.T) {
	repo := store.NewMemory()
	svc := NewService(repo, nil)
	ctx := context.Background()

	entry, err := svc.LogGoal(ctx, uid, 2, true)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Day)

	_, err = svc.LogGoal(ctx, uid, 1, true)
	require.NoError(t, err)
	user, err := repo.GetUser(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 2, user.Challenge.LastCompletedDay, "last completed day never moves backwards")

	_, err = svc.LogGoal(ctx, uid, 12, true)
	assert.True(t, IsValidation(err))
}

func TestDecode(t *testing.T) {
	var in SetChallengeDayInput
	require.NoError(t, Decode(strings.NewReader(`{"day":3,"extra":true}`), &in))
	assert.Equal(t, 3, *in.Day)

	cases := []string{``, `{"day":"3"}`, `{"day":3.5}`, `[1]`, `{"day":`}
	for _, body := range cases {
		var v SetChallengeDayInput
		err := Decode(strings.NewReader(body), &v)
		assert.True(t, IsValidation(err), "body %q should be a validation error, got %v", body, err)
	}

	var ev TrackEventInput
	err := Decode(strings.NewReader(`{"name":"x","payload":[1,2]}`), &ev)
	assert.True(t, IsValidation(err), "array payload must be rejected")
}
