package suspension

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingResumer struct {
	mu       sync.Mutex
	resumed  []string
	timedOut []string
	fail     string
}

func (r *recordingResumer) ResumeTimer(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == r.fail {
		return errors.New("boom")
	}

	r.resumed = append(r.resumed, id)

	return nil
}

func (r *recordingResumer) Timeout(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.timedOut = append(r.timedOut, id)

	return nil
}

func TestNewSweeper_RejectsInvalidSchedule(t *testing.T) {
	_, err := NewSweeper(file.NewExecutionRepository(t.TempDir()), &recordingResumer{}, "every now and then")
	require.Error(t, err)

	sweeper, err := NewSweeper(file.NewExecutionRepository(t.TempDir()), &recordingResumer{}, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, sweeper.schedule)
}

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	repo := file.NewExecutionRepository(t.TempDir())

	past := fixedNow.Add(-time.Minute)
	future := fixedNow.Add(time.Minute)

	waits := map[string]*models.Wait{
		"timer-due":    {Kind: models.WaitKindTimer, ResumeAt: &past},
		"timer-broken": {Kind: models.WaitKindTimer, ResumeAt: &past},
		"timer-later":  {Kind: models.WaitKindTimer, ResumeAt: &future},
		"hook-expired": {Kind: models.WaitKindWebhook, MatchField: models.MatchFieldCallID, MatchValue: "c-1", Deadline: &past},
		"hook-pending": {Kind: models.WaitKindWebhook, MatchField: models.MatchFieldCallID, MatchValue: "c-2", Deadline: &future},
	}

	for id, wait := range waits {
		require.NoError(t, repo.Create(ctx, &models.Execution{
			ID: id, WorkflowID: "wf-1", TenantID: "t-1", Status: models.ExecutionStatusWaiting, Wait: wait,
		}))
	}

	resumer := &recordingResumer{fail: "timer-broken"}

	sweeper, err := NewSweeper(repo, resumer, "@every 1s")
	require.NoError(t, err)
	sweeper.now = func() time.Time { return fixedNow }

	result, err := sweeper.Sweep(ctx)
	require.Error(t, err, "the failing execution is reported")
	assert.Equal(t, SweepResult{Resumed: 1, TimedOut: 1}, result)
	assert.Equal(t, []string{"timer-due"}, resumer.resumed)
	assert.Equal(t, []string{"hook-expired"}, resumer.timedOut)
}

func TestSweeper_StartStopsWithContext(t *testing.T) {
	sweeper, err := NewSweeper(file.NewExecutionRepository(t.TempDir()), &recordingResumer{}, "@every 1s")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- sweeper.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
