package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/bsudfrance/bsf-server/internal/auth"
	"github.com/bsudfrance/bsf-server/internal/services"
	"github.com/bsudfrance/bsf-server/pkg/logger"
)

const (
	defaultSessionRetention    = 90 * 24 * time.Hour
	defaultInvitationRetention = 90 * 24 * time.Hour
	defaultSessionSpec         = "@hourly"
	defaultInvitationSpec      = "@daily"
)

// Cleaner purges terminal session rows and long-dead invitations on a
// schedule. Audit logs and recommendation history are append-only and never
// touched here.
type Cleaner struct {
	sessions    *iauth.SessionService
	invitations *services.InvitationService
	cron        *cron.Cron
	log         *zap.Logger

	sessionRetention    time.Duration
	invitationRetention time.Duration
	sessionSchedule     string
	invitationSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSessionRetention adjusts how long revoked and expired sessions are kept
// as history before deletion.
func WithSessionRetention(retention time.Duration) Option {
	return func(cleaner *Cleaner) {
		if retention > 0 {
			cleaner.sessionRetention = retention
		}
	}
}

// WithInvitationRetention adjusts how long expired unaccepted invitations are
// kept before deletion.
func WithInvitationRetention(retention time.Duration) Option {
	return func(cleaner *Cleaner) {
		if retention > 0 {
			cleaner.invitationRetention = retention
		}
	}
}

// WithSessionSchedule overrides the cron specification for session purging.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithInvitationSchedule overrides the cron specification for invitation purging.
func WithInvitationSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.invitationSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil dependency
// results in the corresponding job being skipped.
func NewCleaner(sessions *iauth.SessionService, invitations *services.InvitationService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:            sessions,
		invitations:         invitations,
		sessionRetention:    defaultSessionRetention,
		invitationRetention: defaultInvitationRetention,
		sessionSchedule:     defaultSessionSpec,
		invitationSchedule:  defaultInvitationSpec,
		log:                 logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the cleanup jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			if _, err := c.sessions.PurgeDeadSessions(context.Background(), c.sessionRetention); err != nil {
				c.log.Warn("session purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.invitations != nil {
		if _, err := c.cron.AddFunc(c.invitationSchedule, func() {
			if _, err := c.invitations.PurgeExpired(context.Background(), c.invitationRetention); err != nil {
				c.log.Warn("invitation purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Used in
// tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if _, err := c.sessions.PurgeDeadSessions(ctx, c.sessionRetention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.invitations != nil {
		if _, err := c.invitations.PurgeExpired(ctx, c.invitationRetention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
