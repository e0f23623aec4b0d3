// Package scheduler re-invokes owned workflows on a fixed cadence. It is the
// recurring-task collaborator of the core: the ledger promises nothing about
// wall-clock liveness, the scheduler does.
package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"flowmarket/pkg/models"
)

// Runner is the hub-side entry point a scheduled job invokes.
type Runner interface {
	RunWorkflow(ctx context.Context, account models.AccountID, workflowID models.WorkflowID, trigger models.Trigger) error
}

// Logger is the logging interface compatible with the application logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// scheduleKey identifies one account's recurring run. Two accounts can each
// own a token for the same record id, so the workflow id alone is ambiguous.
type scheduleKey struct {
	Account  models.AccountID
	Workflow models.WorkflowID
}

// Scheduler drives cron entries that call Container.Run with the scheduled
// trigger. One entry per account and workflow id; attaching again replaces
// the cadence.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[scheduleKey]cron.EntryID
	runner  Runner
	logger  Logger
}

// New builds a stopped scheduler; call Start before attaching entries serves
// any runs.
func New(runner Runner, logger Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		entries: make(map[scheduleKey]cron.EntryID),
		runner:  runner,
		logger:  logger,
	}
}

// Start begins serving scheduled runs.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron loop and waits for in-flight jobs.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// Attach registers a recurring run of the account's workflow. The cadence is a
// cron expression. A failing run is logged, never fatal to the loop.
func (s *Scheduler) Attach(account models.AccountID, workflowID models.WorkflowID, cadence string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scheduleKey{Account: account, Workflow: workflowID}
	if old, ok := s.entries[key]; ok {
		s.cron.Remove(old)
		delete(s.entries, key)
	}

	id, err := s.cron.AddFunc(cadence, func() {
		if err := s.runner.RunWorkflow(context.Background(), account, workflowID, models.TriggerScheduled); err != nil {
			if s.logger != nil {
				s.logger.Error("scheduled run failed", "account", account, "workflow_id", workflowID, "error", err)
			}
		}
	})
	if err != nil {
		return err
	}
	s.entries[key] = id
	return nil
}

// Detach removes the account's recurring run of the workflow, if any. Safe to
// call for workflows that were never attached.
func (s *Scheduler) Detach(account models.AccountID, workflowID models.WorkflowID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scheduleKey{Account: account, Workflow: workflowID}
	if id, ok := s.entries[key]; ok {
		s.cron.Remove(id)
		delete(s.entries, key)
	}
}

// Attached reports whether the account currently has a recurring run of the
// workflow.
func (s *Scheduler) Attached(account models.AccountID, workflowID models.WorkflowID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[scheduleKey{Account: account, Workflow: workflowID}]
	return ok
}
