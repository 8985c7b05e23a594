package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// SessionCleaner deletes expired and long-revoked sessions
type SessionCleaner interface {
	CleanupExpiredSessions(ctx context.Context) error
}

// SessionCleanupJob prunes the session table
type SessionCleanupJob struct {
	cleaner SessionCleaner
	timeout time.Duration
}

// NewSessionCleanupJob creates a session cleanup job
func NewSessionCleanupJob(cleaner SessionCleaner, timeout time.Duration) *SessionCleanupJob {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &SessionCleanupJob{cleaner: cleaner, timeout: timeout}
}

// Name returns the job name
func (j *SessionCleanupJob) Name() string {
	return "session_cleanup"
}

// Run deletes stale sessions
func (j *SessionCleanupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	return j.cleaner.CleanupExpiredSessions(ctx)
}

// Probe checks one backend
type Probe func(ctx context.Context) error

// HealthCheckJob pings every backend and logs state transitions
type HealthCheckJob struct {
	probes  map[string]Probe
	timeout time.Duration
	log     zerolog.Logger
	healthy map[string]bool
}

// NewHealthCheckJob creates a health check job over the named probes
func NewHealthCheckJob(probes map[string]Probe, timeout time.Duration, log zerolog.Logger) *HealthCheckJob {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthCheckJob{
		probes:  probes,
		timeout: timeout,
		log:     log.With().Str("job", "health_check").Logger(),
		healthy: make(map[string]bool, len(probes)),
	}
}

// Name returns the job name
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// Run probes each backend. It fails when any probe fails.
func (j *HealthCheckJob) Run() error {
	names := make([]string, 0, len(j.probes))
	for name := range j.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		err := j.probes[name](ctx)
		cancel()

		was, seen := j.healthy[name]
		j.healthy[name] = err == nil
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if !seen || was {
				j.log.Warn().Err(err).Str("backend", name).Msg("Backend unhealthy")
			}
		case seen && !was:
			j.log.Info().Str("backend", name).Msg("Backend recovered")
		}
	}
	return errors.Join(errs...)
}
