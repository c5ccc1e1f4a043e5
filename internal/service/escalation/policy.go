package escalation

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/oshokin/deadman/internal/config"
	"github.com/oshokin/deadman/internal/domain/liveness"
)

// Policy tunes the engine.
type Policy struct {
	// ReminderTiers are the lead times before the deadline at which the
	// subject is reminded, kept sorted from widest to tightest.
	ReminderTiers []time.Duration
	// ReminderChannel delivers reminders.
	ReminderChannel liveness.Channel
	// EmergencyChannel delivers emergencies.
	EmergencyChannel liveness.Channel
	// EmergencyDelay is the grace period after a missed deadline.
	EmergencyDelay time.Duration
	// SendTimeout bounds one sender call.
	SendTimeout time.Duration
	// Workers bounds the number of subjects evaluated at once.
	Workers int
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		ReminderTiers:    config.DefaultReminderTiers(),
		ReminderChannel:  liveness.ChannelEmail,
		EmergencyChannel: liveness.ChannelWhatsApp,
		SendTimeout:      config.DefaultSendTimeout,
		Workers:          config.DefaultWorkers,
	}
}

// PolicyFromConfig converts validated escalation settings.
func PolicyFromConfig(cfg config.Escalation) (Policy, error) {
	reminderChannel, err := liveness.ParseChannel(cfg.ReminderChannel)
	if err != nil {
		return Policy{}, fmt.Errorf("reminder channel: %w", err)
	}

	emergencyChannel, err := liveness.ParseChannel(cfg.EmergencyChannel)
	if err != nil {
		return Policy{}, fmt.Errorf("emergency channel: %w", err)
	}

	p := Policy{
		ReminderTiers:    cfg.ReminderTiers,
		ReminderChannel:  reminderChannel,
		EmergencyChannel: emergencyChannel,
		EmergencyDelay:   cfg.EmergencyDelay,
		SendTimeout:      cfg.SendTimeout,
		Workers:          cfg.Workers,
	}

	return p.normalized(), nil
}

// normalized sorts and deduplicates tiers and fills zero values with defaults.
func (p Policy) normalized() Policy {
	defaults := DefaultPolicy()

	tiers := lo.Uniq(lo.Filter(p.ReminderTiers, func(d time.Duration, _ int) bool { return d > 0 }))
	slices.SortFunc(tiers, func(a, b time.Duration) int { return cmp.Compare(b, a) })

	if len(tiers) == 0 {
		tiers = defaults.ReminderTiers
	}

	p.ReminderTiers = tiers

	if p.ReminderChannel == 0 {
		p.ReminderChannel = defaults.ReminderChannel
	}

	if p.EmergencyChannel == 0 {
		p.EmergencyChannel = defaults.EmergencyChannel
	}

	if p.SendTimeout <= 0 {
		p.SendTimeout = defaults.SendTimeout
	}

	if p.Workers <= 0 {
		p.Workers = defaults.Workers
	}

	if p.EmergencyDelay < 0 {
		p.EmergencyDelay = 0
	}

	return p
}

// reminderTier returns the tightest tier reached when left remains before
// the deadline, i.e. the smallest tier with 0 < left <= tier.
func (p Policy) reminderTier(left time.Duration) (time.Duration, bool) {
	if left <= 0 {
		return 0, false
	}

	for i := len(p.ReminderTiers) - 1; i >= 0; i-- {
		if left <= p.ReminderTiers[i] {
			return p.ReminderTiers[i], true
		}
	}

	return 0, false
}

// lookahead is how far ahead of now a deadline must be for the subject to
// need attention in this tick.
func (p Policy) lookahead() time.Duration {
	widest := liveness.OverdueWindow

	if len(p.ReminderTiers) > 0 && p.ReminderTiers[0] > widest {
		widest = p.ReminderTiers[0]
	}

	return widest
}
