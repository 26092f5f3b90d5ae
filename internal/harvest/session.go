package harvest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnitExtractor runs one extraction pass over the open detail view.
type UnitExtractor interface {
	Extract(ctx context.Context, cand Candidate) (ContentUnit, ExtractStats)
}

const (
	// openAttempts bounds local retries before a unit is abandoned.
	openAttempts = 3
	// recoveryFailureLimit ends the session after this many consecutive
	// failed drift recoveries.
	recoveryFailureLimit = 2
	// resultsScrollPixels is one reveal step on the results listing.
	resultsScrollPixels = 600
	// scrollEveryProcessed reveals more candidates as the visible window
	// gets consumed.
	scrollEveryProcessed = 3
	// notifyTimeout bounds the completion publish, which runs on its own
	// context so a canceled session still reports out.
	notifyTimeout = 10 * time.Second
)

// SessionConfig bounds one crawl run.
type SessionConfig struct {
	SearchTerm      string
	Quota           int
	StallThreshold  int
	CandidateWindow int
	BaseURL         string
	ResultsRoute    string
	ArtifactPath    string
}

// SessionDeps are the collaborators a session drives. Browser is exclusively
// owned for the session's lifetime.
type SessionDeps struct {
	Browser   Browser
	Extractor UnitExtractor
	Visited   VisitedSet
	Store     Store
	Pacer     Pacer
	Notifier  CompletionNotifier
	Logger    *zap.Logger
}

// Session is one crawl run against one search term. All mutation happens on
// the single Run flow; Snapshot is the only concurrent reader.
type Session struct {
	cfg   SessionConfig
	deps  SessionDeps
	guard navGuard
	id    string
	now   func() time.Time

	mu            sync.Mutex
	state         State
	processed     int
	emptyScans    int
	fieldFailures map[string]int
}

// NewSession validates the configuration and builds a session.
func NewSession(cfg SessionConfig, deps SessionDeps) (*Session, error) {
	if cfg.SearchTerm == "" {
		return nil, fmt.Errorf("search term is required")
	}
	if cfg.Quota <= 0 {
		cfg.Quota = 20
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = 5
	}
	if cfg.CandidateWindow <= 0 {
		cfg.CandidateWindow = 6
	}
	guard, err := newNavGuard(cfg.BaseURL, cfg.ResultsRoute)
	if err != nil {
		return nil, err
	}
	if deps.Pacer == nil {
		deps.Pacer = NopPacer{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Session{
		cfg:           cfg,
		deps:          deps,
		guard:         guard,
		id:            uuid.NewString(),
		now:           time.Now,
		state:         StateSearching,
		fieldFailures: make(map[string]int),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Snapshot returns a point-in-time view for the operator endpoint.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	failures := make(map[string]int, len(s.fieldFailures))
	for field, n := range s.fieldFailures {
		failures[field] = n
	}
	return Snapshot{
		SessionID:     s.id,
		SearchTerm:    s.cfg.SearchTerm,
		State:         s.state,
		Processed:     s.processed,
		EmptyScans:    s.emptyScans,
		FieldFailures: failures,
	}
}

// Run drives the session to completion and returns its terminal report. The
// store is closed on every exit path so buffered units are never lost;
// partial results already flushed are retained regardless of the stop
// reason.
func (s *Session) Run(ctx context.Context) (Result, error) {
	startedAt := s.now()
	logger := s.deps.Logger.With(
		zap.String("session_id", s.id),
		zap.String("search_term", s.cfg.SearchTerm),
	)
	logger.Info("session starting", zap.Int("quota", s.cfg.Quota))

	storeClosed := false
	closeStore := func() {
		if storeClosed {
			return
		}
		storeClosed = true
		if err := s.deps.Store.Close(); err != nil {
			logger.Error("store close failed", zap.Error(err))
		}
	}
	defer closeStore()

	stop, runErr := s.loop(ctx, logger)
	// The artifact must be durable before anyone downstream is told it is
	// complete, so the final flush happens ahead of the notification.
	closeStore()
	res := s.finish(logger, stop, startedAt)
	return res, runErr
}

func (s *Session) loop(ctx context.Context, logger *zap.Logger) (StopReason, error) {
	s.setState(StateSearching)
	if err := s.deps.Browser.Search(ctx, s.cfg.SearchTerm); err != nil {
		return StopFatalDrift, fmt.Errorf("initial search: %w", err)
	}
	s.deps.Pacer.Pause(ctx, ActionNavigate)

	recoveryFailures := 0
	for {
		// Cancellation is honored only between full units so extraction
		// never stops midway through a unit.
		if ctx.Err() != nil {
			logger.Info("session canceled")
			return StopCanceled, nil
		}

		onResults, err := s.onResults(ctx)
		if err != nil {
			logger.Warn("location check failed", zap.Error(err))
			onResults = false
		}
		if !onResults {
			if err := s.recover(ctx, logger); err != nil {
				recoveryFailures++
				logger.Warn("drift recovery failed",
					zap.Int("consecutive_failures", recoveryFailures),
					zap.Error(err),
				)
				if recoveryFailures >= recoveryFailureLimit {
					return StopFatalDrift, fmt.Errorf("drift recovery: %w", err)
				}
				continue
			}
			recoveryFailures = 0
			driftRecoveriesTotal.Inc()
			// Recovery does not penalize the stall count.
			continue
		}

		s.setState(StateSelecting)
		cand, found, err := s.scan(ctx, logger)
		if err != nil {
			return StopFatalDrift, err
		}
		if !found {
			if s.bumpEmptyScans() >= s.cfg.StallThreshold {
				logger.Info("candidate listing exhausted",
					zap.Int("empty_scans", s.cfg.StallThreshold))
				return StopExhausted, nil
			}
			if err := s.deps.Browser.ScrollResults(ctx, resultsScrollPixels); err != nil {
				logger.Warn("results scroll failed", zap.Error(err))
			}
			s.deps.Pacer.Pause(ctx, ActionScroll)
			continue
		}

		stop, done, err := s.processUnit(ctx, logger, cand)
		if err != nil || done {
			return stop, err
		}
	}
}

// scan reads the visible candidate window and picks the first unvisited
// unit. A failed read counts as an empty scan rather than ending the run.
func (s *Session) scan(ctx context.Context, logger *zap.Logger) (Candidate, bool, error) {
	cands, err := s.deps.Browser.Candidates(ctx, s.cfg.CandidateWindow)
	if err != nil {
		logger.Warn("candidate scan failed", zap.Error(err))
		return Candidate{}, false, nil
	}
	cand, found, err := nextUnvisited(ctx, s.deps.Visited, cands)
	if err != nil {
		return Candidate{}, false, err
	}
	return cand, found, nil
}

// processUnit opens, extracts and records one unit. done reports a terminal
// condition with its stop reason.
func (s *Session) processUnit(ctx context.Context, logger *zap.Logger, cand Candidate) (StopReason, bool, error) {
	s.setState(StateOpening)
	s.deps.Pacer.Pause(ctx, ActionOpen)
	if err := s.openWithRetry(ctx, cand); err != nil {
		// The unit is abandoned and marked visited so repeated scans make
		// progress past it.
		logger.Warn("unit abandoned",
			zap.String("unit", cand.ID),
			zap.Error(err),
		)
		unitsAbandonedTotal.Inc()
		s.markVisited(ctx, logger, cand.ID)
		return "", false, nil
	}

	s.setState(StateExtracting)
	unit, stats := s.deps.Extractor.Extract(ctx, cand)
	unit.SearchTerm = s.cfg.SearchTerm

	if err := s.deps.Browser.CloseDetail(ctx); err != nil {
		logger.Warn("close detail failed", zap.Error(err))
	}

	// Visited only after extraction completed; a crash before this point
	// leaves the unit eligible for a later pass.
	s.markVisited(ctx, logger, cand.ID)
	s.tallyFailures(stats.Failed)

	s.setState(StateRecording)
	if err := s.deps.Store.Append(unit); err != nil {
		logger.Error("record append failed",
			zap.String("unit", unit.ID),
			zap.Error(err),
		)
	} else {
		unitsHarvestedTotal.Inc()
	}

	processed := s.bumpProcessed()
	logger.Info("unit recorded",
		zap.String("unit", unit.ID),
		zap.String("media_type", string(unit.MediaType)),
		zap.Int("processed", processed),
		zap.Strings("failed_fields", stats.Failed),
	)

	if stats.Fatal != nil {
		logger.Error("session-fatal condition during extraction", zap.Error(stats.Fatal))
		return StopAccessBlocked, true, stats.Fatal
	}
	if processed >= s.cfg.Quota {
		return StopQuotaReached, true, nil
	}

	if processed%scrollEveryProcessed == 0 {
		if err := s.deps.Browser.ScrollResults(ctx, resultsScrollPixels); err != nil {
			logger.Warn("results scroll failed", zap.Error(err))
		}
	}
	s.deps.Pacer.Pause(ctx, ActionRead)
	return "", false, nil
}

func (s *Session) openWithRetry(ctx context.Context, cand Candidate) error {
	var lastErr error
	for attempt := 1; attempt <= openAttempts; attempt++ {
		if err := s.deps.Browser.OpenCandidate(ctx, cand); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.deps.Pacer.Pause(ctx, ActionOpen)
			continue
		}
		return nil
	}
	return fmt.Errorf("open after %d attempts: %w", openAttempts, lastErr)
}

// recover navigates back to the landing page and re-issues the original
// search. VisitedSet and the processed count survive untouched.
func (s *Session) recover(ctx context.Context, logger *zap.Logger) error {
	s.setState(StateRecovering)
	logger.Warn("navigation drift detected, recovering")

	if err := s.deps.Browser.NavigateHome(ctx); err != nil {
		return fmt.Errorf("navigate home: %w", err)
	}
	s.deps.Pacer.Pause(ctx, ActionNavigate)
	if err := s.deps.Browser.Search(ctx, s.cfg.SearchTerm); err != nil {
		return fmt.Errorf("re-issue search: %w", err)
	}
	s.deps.Pacer.Pause(ctx, ActionNavigate)
	return nil
}

func (s *Session) onResults(ctx context.Context) (bool, error) {
	loc, err := s.deps.Browser.Location(ctx)
	if err != nil {
		return false, err
	}
	return s.guard.onResults(loc), nil
}

func (s *Session) finish(logger *zap.Logger, stop StopReason, startedAt time.Time) Result {
	s.setState(StateCompleted)

	s.mu.Lock()
	failures := make(map[string]int, len(s.fieldFailures))
	for field, n := range s.fieldFailures {
		failures[field] = n
	}
	processed := s.processed
	s.mu.Unlock()

	res := Result{
		SessionID:     s.id,
		SearchTerm:    s.cfg.SearchTerm,
		StopReason:    stop,
		Processed:     processed,
		FieldFailures: failures,
		ArtifactPath:  s.cfg.ArtifactPath,
		StartedAt:     startedAt,
		FinishedAt:    s.now(),
	}
	logger.Info("session completed",
		zap.String("stop_reason", string(stop)),
		zap.Int("processed", processed),
	)

	if s.deps.Notifier != nil {
		// The run context may already be canceled when the session stopped on
		// an interrupt; the completion event still has to go out, so the
		// publish gets its own short-lived context.
		notifyCtx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.deps.Notifier.SessionCompleted(notifyCtx, res); err != nil {
			logger.Warn("completion notification failed", zap.Error(err))
		}
	}
	return res
}

func (s *Session) markVisited(ctx context.Context, logger *zap.Logger, id string) {
	if _, err := s.deps.Visited.Mark(ctx, id); err != nil {
		logger.Error("visited mark failed", zap.String("unit", id), zap.Error(err))
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) bumpEmptyScans() int {
	emptyScansTotal.Inc()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emptyScans++
	return s.emptyScans
}

func (s *Session) bumpProcessed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.emptyScans = 0
	return s.processed
}

func (s *Session) tallyFailures(failed []string) {
	if len(failed) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, field := range failed {
		s.fieldFailures[field]++
	}
}
