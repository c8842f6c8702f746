// Package poller waits for judge results of a round and hands them to the orchestrator.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/biswa/coduel-signal/internal/models"
	"github.com/biswa/coduel-signal/internal/perf"
	"github.com/biswa/coduel-signal/internal/results"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultAttempts = 15
)

// Target owns the rooms being polled for. Every call re-reads the live registry.
type Target interface {
	// Tracked reports whether the room still holds all of the given submissions.
	Tracked(code string, ids []string) bool
	// Resolve decides the round. snaps is ordered like subs.
	Resolve(code string, subs []models.Submission, snaps []perf.Snapshot)
	// Expire reports that the results did not arrive in time.
	Expire(code string, subs []models.Submission)
}

type Poller struct {
	store    results.Store
	target   Target
	interval time.Duration
	attempts int
	logger   zerolog.Logger

	mu       sync.Mutex
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopped  bool
}

func New(store results.Store, target Target, interval time.Duration, attempts int, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	return &Poller{
		store:    store,
		target:   target,
		interval: interval,
		attempts: attempts,
		logger:   logger.With().Str("component", "poller").Logger(),
		stopChan: make(chan struct{}),
	}
}

// SetTarget binds the orchestrator after construction.
func (p *Poller) SetTarget(target Target) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = target
}

// Schedule starts one resolution attempt for subs, which must be ordered earliest first.
// The attempt ends when ctx is cancelled, the poller stops, the submissions are no longer
// tracked, both results are ready or the attempt budget runs out.
func (p *Poller) Schedule(ctx context.Context, code string, subs []models.Submission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.target == nil {
		return
	}
	ids := make([]string, len(subs))
	for i, s := range subs {
		ids[i] = s.SubmissionID
	}
	attemptID := uuid.Must(uuid.NewV4()).String()
	logger := p.logger.With().Str("room", code).Str("attempt", attemptID).Strs("submissions", ids).Logger()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, p.target, code, subs, ids, logger)
	}()
}

func (p *Poller) run(ctx context.Context, target Target, code string, subs []models.Submission, ids []string,
	logger zerolog.Logger,
) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.attempts; attempt++ {
		// The first read happens right away; later ones wait one interval each.
		if attempt > 1 {
			select {
			case <-ctx.Done():
				logger.Debug().Msg("room closed, abandoning attempt")
				return
			case <-p.stopChan:
				return
			case <-ticker.C:
			}
		}

		if ctx.Err() != nil || p.isStopped() || !target.Tracked(code, ids) {
			logger.Debug().Int("tick", attempt).Msg("submissions no longer tracked")
			return
		}

		snaps, ready := p.collect(ctx, subs, logger)
		if ready {
			logger.Info().Int("tick", attempt).Msg("results ready")
			target.Resolve(code, subs, snaps)
			return
		}
	}

	logger.Warn().Int("attempts", p.attempts).Msg("results did not arrive in time")
	target.Expire(code, subs)
}

func (p *Poller) isStopped() bool {
	select {
	case <-p.stopChan:
		return true
	default:
		return false
	}
}

func (p *Poller) collect(ctx context.Context, subs []models.Submission, logger zerolog.Logger) ([]perf.Snapshot, bool) {
	snaps := make([]perf.Snapshot, len(subs))
	for i, s := range subs {
		snap, ready, err := results.Lookup(ctx, p.store, s.SubmissionID)
		switch {
		case eris.Is(err, results.ErrMalformedResult):
			logger.Debug().Err(err).Str("submission", s.SubmissionID).Msg("result not parseable yet")
			return nil, false
		case err != nil:
			logger.Warn().Err(err).Str("submission", s.SubmissionID).Msg("result store read failed")
			return nil, false
		case !ready:
			return nil, false
		}
		snaps[i] = snap
	}
	return snaps, true
}

// Stop cancels every outstanding attempt and waits for them to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopChan)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
