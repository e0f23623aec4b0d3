package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowmarket/pkg/models"
)

type recordingRunner struct {
	mu   sync.Mutex
	runs []models.WorkflowID
}

func (r *recordingRunner) RunWorkflow(ctx context.Context, account models.AccountID, workflowID models.WorkflowID, trigger models.Trigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, workflowID)
	return nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func TestScheduler_AttachDetach(t *testing.T) {
	s := New(&recordingRunner{}, nil)

	require.NoError(t, s.Attach("alice@example.com", 1, "@hourly"))
	assert.True(t, s.Attached("alice@example.com", 1))

	// Re-attaching replaces the cadence instead of stacking a second entry.
	require.NoError(t, s.Attach("alice@example.com", 1, "@daily"))
	assert.True(t, s.Attached("alice@example.com", 1))

	s.Detach("alice@example.com", 1)
	assert.False(t, s.Attached("alice@example.com", 1))
	s.Detach("alice@example.com", 1)
}

func TestScheduler_EntriesArePerAccount(t *testing.T) {
	s := New(&recordingRunner{}, nil)

	// Two accounts each own a token for the same record id; their schedules
	// must not share a slot.
	require.NoError(t, s.Attach("alice@example.com", 1, "@every 1h"))
	require.NoError(t, s.Attach("bob@example.com", 1, "@every 1h"))
	assert.True(t, s.Attached("alice@example.com", 1))
	assert.True(t, s.Attached("bob@example.com", 1))

	s.Detach("bob@example.com", 1)
	assert.True(t, s.Attached("alice@example.com", 1), "alice's schedule survives bob's detach")
	assert.False(t, s.Attached("bob@example.com", 1))
}

func TestScheduler_RejectsBadCadence(t *testing.T) {
	s := New(&recordingRunner{}, nil)
	err := s.Attach("alice@example.com", 1, "not a cron expression")
	require.Error(t, err)
	assert.False(t, s.Attached("alice@example.com", 1))
}

func TestScheduler_RunsAttachedWorkflow(t *testing.T) {
	runner := &recordingRunner{}
	s := New(runner, nil)
	require.NoError(t, s.Attach("alice@example.com", 1, "@every 10ms"))

	s.Start()
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for runner.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("scheduled run never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
