package server

import (
	"context"
	"fmt"

	"github.com/oshokin/deadman/internal/logger"
	"github.com/oshokin/deadman/internal/service/escalation"
)

// TickOptions controls a one-shot escalation run.
type TickOptions struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// DatabasePath overrides the SQLite file from the settings.
	DatabasePath string
	// SubjectID limits the run to one subject when set.
	SubjectID string
}

// RunTick evaluates the subjects once and returns the report. It is meant
// for cron-driven deployments where no long-running server is wanted.
func RunTick(ctx context.Context, opts *TickOptions) (escalation.Report, error) {
	ctx = logger.WithName(ctx, "deadman-tick")

	settings, err := loadSettings(opts.ConfigPath, opts.DatabasePath)
	if err != nil {
		return escalation.Report{}, err
	}

	svc, err := newService(ctx, settings)
	if err != nil {
		return escalation.Report{}, fmt.Errorf("initialise service: %w", err)
	}

	defer func() {
		_ = svc.Close()
	}()

	var report escalation.Report

	if opts.SubjectID != "" {
		report, err = svc.engine.EvaluateSubject(ctx, opts.SubjectID)
	} else {
		report, err = svc.engine.Tick(ctx)
	}

	if err != nil {
		return escalation.Report{}, err
	}

	logger.InfoKV(ctx, "Tick finished",
		"evaluated", report.Evaluated,
		"reminders", report.Reminders,
		"emergencies", report.Emergencies,
		"resends", report.Resends,
		"delivered", report.Delivered,
		"dispatch_failures", report.DispatchFailures,
		"failed", report.Failed)

	return report, nil
}
