package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/deadman/internal/domain/liveness"
	"github.com/oshokin/deadman/internal/lock"
	"github.com/oshokin/deadman/internal/logger"
	"github.com/oshokin/deadman/internal/repository"
)

// Sender delivers one notification to one recipient.
type Sender interface {
	Send(ctx context.Context, n *liveness.Notification, to liveness.Recipient) error
}

// Report summarizes one tick or one subject evaluation.
type Report struct {
	// Evaluated counts subjects whose section ran.
	Evaluated int
	// StatusChanges counts subjects whose stored status moved.
	StatusChanges int
	// Reminders counts reminders created.
	Reminders int
	// Emergencies counts emergencies created.
	Emergencies int
	// Resends counts resends and retries attempted.
	Resends int
	// Cancelled counts notifications closed by the engine.
	Cancelled int
	// Delivered counts successful sender calls.
	Delivered int
	// DispatchFailures counts failed or timed out sender calls.
	DispatchFailures int
	// Failed counts subjects whose section returned an error.
	Failed int
}

func (r *Report) add(other Report) {
	r.Evaluated += other.Evaluated
	r.StatusChanges += other.StatusChanges
	r.Reminders += other.Reminders
	r.Emergencies += other.Emergencies
	r.Resends += other.Resends
	r.Cancelled += other.Cancelled
	r.Delivered += other.Delivered
	r.DispatchFailures += other.DispatchFailures
	r.Failed += other.Failed
}

// Engine evaluates subjects against the escalation policy.
type Engine struct {
	store  repository.Store
	sender Sender
	locker lock.Locker
	clock  liveness.Clock
	ids    liveness.IDGenerator
	policy Policy
}

// NewEngine wires an engine. Zero policy fields take defaults.
func NewEngine(
	store repository.Store,
	sender Sender,
	locker lock.Locker,
	clock liveness.Clock,
	ids liveness.IDGenerator,
	policy Policy,
) *Engine {
	return &Engine{
		store:  store,
		sender: sender,
		locker: locker,
		clock:  clock,
		ids:    ids,
		policy: policy.normalized(),
	}
}

// Policy returns the effective policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Tick evaluates every subject that needs attention at the current time.
// A failing subject is counted in the report and does not stop the tick.
// Cancelling ctx stops scheduling further subjects; sections already
// running finish.
func (e *Engine) Tick(ctx context.Context) (Report, error) {
	now := e.clock.Now()

	candidates, err := e.candidates(ctx, now)
	if err != nil {
		return Report{}, err
	}

	var (
		report Report
		mu     sync.Mutex
		group  errgroup.Group
	)

	group.SetLimit(e.policy.Workers)

	for _, subjectID := range candidates {
		if ctx.Err() != nil {
			break
		}

		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			out, err := e.evaluate(ctx, subjectID, now)

			switch {
			case err != nil && ctx.Err() != nil:
				logger.DebugKV(ctx, "Subject skipped on shutdown", "subject_id", subjectID)
			case err != nil:
				logger.ErrorKV(ctx, "Subject evaluation failed", "subject_id", subjectID, "error", err)

				out.Failed++
			}

			mu.Lock()
			report.add(out)
			mu.Unlock()

			return nil
		})
	}

	_ = group.Wait()

	return report, nil
}

// EvaluateSubject runs one section for a single subject at the current time.
func (e *Engine) EvaluateSubject(ctx context.Context, subjectID string) (Report, error) {
	return e.evaluate(ctx, subjectID, e.clock.Now())
}

// Run calls Tick every interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ctx = logger.WithName(ctx, "escalation")

	logger.InfoKV(ctx, "Escalation loop started",
		"interval", interval.String(),
		"workers", e.policy.Workers,
		"reminder_tiers", lo.Map(e.policy.ReminderTiers, func(d time.Duration, _ int) string { return d.String() }))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Escalation loop stopped")

			return nil
		case <-ticker.C:
			report, err := e.Tick(ctx)
			if err != nil {
				logger.ErrorKV(ctx, "Tick failed", "error", err)

				continue
			}

			logReport(ctx, report)
		}
	}
}

// candidates lists subjects close to or past the deadline and subjects
// owning notifications due for a resend, each once.
func (e *Engine) candidates(ctx context.Context, now time.Time) ([]string, error) {
	subjects, err := e.store.Subjects().ListOverdue(ctx, now.Add(e.policy.lookahead()))
	if err != nil {
		return nil, fmt.Errorf("list subjects near deadline: %w", err)
	}

	due, err := e.store.Notifications().FindDueForResend(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list notifications due for resend: %w", err)
	}

	ids := lo.Map(subjects, func(s *liveness.Subject, _ int) string { return s.ID() })
	ids = append(ids, lo.Map(due, func(n *liveness.Notification, _ int) string { return n.SubjectID() })...)

	return lo.Uniq(ids), nil
}

func logReport(ctx context.Context, r Report) {
	if r.Evaluated == 0 && r.Failed == 0 {
		logger.Debug(ctx, "Tick finished, nothing to do")

		return
	}

	logger.InfoKV(ctx, "Tick finished",
		"evaluated", r.Evaluated,
		"status_changes", r.StatusChanges,
		"reminders", r.Reminders,
		"emergencies", r.Emergencies,
		"resends", r.Resends,
		"cancelled", r.Cancelled,
		"delivered", r.Delivered,
		"dispatch_failures", r.DispatchFailures,
		"failed", r.Failed)
}

// isNotFound reports whether err means the subject disappeared.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
