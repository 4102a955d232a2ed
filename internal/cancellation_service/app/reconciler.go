package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/otpbazaar/golang_services/internal/cancellation_service/domain"
	"github.com/otpbazaar/golang_services/internal/platform/cache"
	"github.com/otpbazaar/golang_services/internal/platform/messagebroker"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const SubjectRunCompleted = "cancellations.run_completed"

// ReconcilerConfig holds the reconciler's tunables.
type ReconcilerConfig struct {
	PollingInterval  time.Duration `mapstructure:"RECONCILER_POLLING_INTERVAL"`
	BatchSize        int           `mapstructure:"RECONCILER_BATCH_SIZE"`
	MaxAttempts      int           `mapstructure:"RECONCILER_MAX_ATTEMPTS"`
	EarlyCancelDelay time.Duration `mapstructure:"RECONCILER_EARLY_CANCEL_DELAY"`
	Concurrency      int           `mapstructure:"RECONCILER_CONCURRENCY"`
	MatchMode        MatchMode     `mapstructure:"RECONCILER_MATCH_MODE"`
}

func (c ReconcilerConfig) withDefaults() ReconcilerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.EarlyCancelDelay <= 0 {
		c.EarlyCancelDelay = 60 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MatchMode == "" {
		c.MatchMode = MatchSubstring
	}
	return c
}

// Reconciler releases abandoned number leases with their upstream providers.
type Reconciler struct {
	repo        domain.PendingCancellationRepository
	servers     domain.ServerConfigLookup
	canceller   domain.ProviderCanceller
	serverCache *cache.TTLCache[string, *domain.ServerConfig]
	publisher   messagebroker.Publisher
	logger      *slog.Logger
	config      ReconcilerConfig
	now         func() time.Time
	runMu       sync.Mutex
}

func NewReconciler(
	repo domain.PendingCancellationRepository,
	servers domain.ServerConfigLookup,
	canceller domain.ProviderCanceller,
	serverCache *cache.TTLCache[string, *domain.ServerConfig],
	publisher messagebroker.Publisher,
	logger *slog.Logger,
	cfg ReconcilerConfig,
) *Reconciler {
	if serverCache == nil {
		serverCache = cache.New[string, *domain.ServerConfig](0)
	}
	return &Reconciler{
		repo:        repo,
		servers:     servers,
		canceller:   canceller,
		serverCache: serverCache,
		publisher:   publisher,
		logger:      logger.With("component", "cancellation_reconciler"),
		config:      cfg.withDefaults(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run processes one batch of due cancellations. Only a failure to read the
// queue is returned as an error; per-record failures are stored on the record.
func (r *Reconciler) Run(ctx context.Context) (domain.RunSummary, error) {
	// Ticker and HTTP trigger may overlap; one pass at a time keeps the
	// attempt counters consistent.
	r.runMu.Lock()
	defer r.runMu.Unlock()

	var summary domain.RunSummary
	if r.serverCache.TTL() <= 0 {
		r.serverCache.Reset()
	}

	now := r.now()
	due, err := r.repo.ListDue(ctx, now, r.config.MaxAttempts, r.config.BatchSize)
	if err != nil {
		if errors.Is(err, domain.ErrNoDueCancellations) {
			reconcilerRunsCounter.WithLabelValues("ok").Inc()
			return summary, nil
		}
		reconcilerRunsCounter.WithLabelValues("fetch_error").Inc()
		r.logger.ErrorContext(ctx, "Failed to fetch pending cancellations", "error", err)
		return summary, fmt.Errorf("fetch pending cancellations: %w", err)
	}

	r.logger.InfoContext(ctx, "Processing pending cancellations", "count", len(due), "concurrency", r.config.Concurrency)

	var mu sync.Mutex
	record := func(status domain.CancellationStatus) {
		if status == statusInterrupted {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		summary.Processed++
		switch status {
		case domain.StatusCancelled:
			summary.Cancelled++
		case domain.StatusPending:
			summary.Failed++
			summary.Rescheduled++
		default:
			summary.Failed++
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(r.config.Concurrency)
	for _, pc := range due {
		pc := pc
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			record(r.process(ctx, pc))
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		r.logger.WarnContext(ctx, "Cancellation run interrupted", "error", ctx.Err(), "processed", summary.Processed, "due", len(due))
	}

	reconcilerRunsCounter.WithLabelValues("ok").Inc()
	r.logger.InfoContext(ctx, "Cancellation run finished",
		"processed", summary.Processed,
		"cancelled", summary.Cancelled,
		"failed", summary.Failed,
		"rescheduled", summary.Rescheduled,
	)

	if summary.Processed > 0 && r.publisher != nil {
		if err := messagebroker.PublishJSON(ctx, r.publisher, SubjectRunCompleted, summary); err != nil {
			r.logger.WarnContext(ctx, "Failed to publish run summary", "error", err)
		}
	}
	return summary, nil
}

// statusInterrupted marks a record left untouched because the run's context
// ended. It is never stored.
const statusInterrupted domain.CancellationStatus = "interrupted"

// process handles a single record and returns the status it ended in.
func (r *Reconciler) process(ctx context.Context, pc *domain.PendingCancellation) domain.CancellationStatus {
	logger := r.logger.With("cancellation_id", pc.ID, "server_id", pc.ServerID, "activation_id", pc.ActivationID)

	// ListDue already filters these out; the check keeps the attempt cap
	// independent of the query.
	if pc.Attempts >= r.config.MaxAttempts {
		logger.WarnContext(ctx, "Record already at max attempts, marking failed", "attempts", pc.Attempts)
		cancellationsProcessedCounter.WithLabelValues("max_attempts").Inc()
		r.markFailed(ctx, logger, pc, pc.Attempts, "max attempts reached")
		return domain.StatusFailed
	}

	serverCfg, err := r.lookupServer(ctx, pc.ServerID)
	if err != nil && !errors.Is(err, domain.ErrServerConfigNotFound) {
		logger.ErrorContext(ctx, "Server config lookup failed", "error", err)
		return r.retry(ctx, logger, pc, fmt.Sprintf("server config lookup failed: %v", err), nil)
	}
	if serverCfg == nil || serverCfg.CancelURL == "" {
		logger.WarnContext(ctx, "No cancel URL configured for server")
		cancellationsProcessedCounter.WithLabelValues("no_config").Inc()
		r.markFailed(ctx, logger, pc, r.config.MaxAttempts, fmt.Sprintf("no cancel URL configured for server %s", pc.ServerID))
		return domain.StatusFailed
	}

	timer := prometheus.NewTimer(cancellationCallDurationHist.WithLabelValues(pc.ServerID))
	body, err := r.canceller.Cancel(ctx, *serverCfg, pc.ActivationID)
	timer.ObserveDuration()
	if err != nil {
		logger.WarnContext(ctx, "Provider cancel call failed", "error", err)
		cancellationsProcessedCounter.WithLabelValues("network_error").Inc()
		return r.retry(ctx, logger, pc, err.Error(), nil)
	}

	outcome := Classify(body, r.config.MatchMode)
	logger.InfoContext(ctx, "Provider cancel response classified", "outcome", outcome.String(), "response", body)
	cancellationsProcessedCounter.WithLabelValues(outcome.String()).Inc()

	switch outcome {
	case OutcomeCancelled:
		if err := r.repo.MarkCancelled(ctx, pc.ID, r.now()); err != nil {
			logger.ErrorContext(ctx, "Failed to mark cancellation as cancelled", "error", err)
			return domain.StatusPending
		}
		return domain.StatusCancelled
	case OutcomePermanentFailure:
		r.markFailed(ctx, logger, pc, r.config.MaxAttempts, body)
		return domain.StatusFailed
	case OutcomeEarlyCancelDenied:
		next := r.now().Add(r.config.EarlyCancelDelay)
		return r.retry(ctx, logger, pc, body, &next)
	default:
		return r.retry(ctx, logger, pc, body, nil)
	}
}

// retry increments attempts; reaching MaxAttempts makes the record terminal.
// Once the run's context has ended the record is left untouched for the next run.
func (r *Reconciler) retry(ctx context.Context, logger *slog.Logger, pc *domain.PendingCancellation, lastError string, nextCancelAfter *time.Time) domain.CancellationStatus {
	if ctx.Err() != nil {
		logger.WarnContext(ctx, "Run context ended, attempt not counted", "error", ctx.Err())
		return statusInterrupted
	}
	attempts := pc.Attempts + 1
	if attempts >= r.config.MaxAttempts {
		r.markFailed(ctx, logger, pc, attempts, lastError)
		return domain.StatusFailed
	}
	if err := r.repo.RecordAttempt(ctx, pc.ID, attempts, lastError, nextCancelAfter); err != nil {
		logger.ErrorContext(ctx, "Failed to record cancellation attempt", "error", err, "attempts", attempts)
	}
	return domain.StatusPending
}

func (r *Reconciler) markFailed(ctx context.Context, logger *slog.Logger, pc *domain.PendingCancellation, attempts int, lastError string) {
	if err := r.repo.MarkFailed(ctx, pc.ID, attempts, lastError); err != nil {
		logger.ErrorContext(ctx, "Failed to mark cancellation as failed", "error", err, "attempts", attempts)
	}
}

// lookupServer returns (nil, ErrServerConfigNotFound) for unknown servers.
// Misses are cached too so a batch for one unknown server hits the DB once.
func (r *Reconciler) lookupServer(ctx context.Context, serverID string) (*domain.ServerConfig, error) {
	cfg, err := r.serverCache.GetOrLoad(ctx, serverID, func(ctx context.Context) (*domain.ServerConfig, error) {
		cfg, err := r.servers.FindServerConfig(ctx, serverID)
		if errors.Is(err, domain.ErrServerConfigNotFound) {
			return nil, nil
		}
		return cfg, err
	})
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, domain.ErrServerConfigNotFound
	}
	return cfg, nil
}
