// Package errorlog implements ingestion, querying and mutation of error records.
package errorlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/errorcue/errorcue/internal/cache"
	"github.com/errorcue/errorcue/internal/notify"
	"github.com/errorcue/errorcue/internal/retry"
	"github.com/errorcue/errorcue/internal/store"
	"github.com/errorcue/errorcue/pkg/models"
	"github.com/google/uuid"
)

// StatsWindow is how far back Stats looks.
const StatsWindow = 7 * 24 * time.Hour

// NoneErrorType is reported as the most common type when the window is empty.
const NoneErrorType = "None"

// AllValues disables a list filter, as does an empty value.
const AllValues = "all"

// Recorder receives domain events for metrics.
type Recorder interface {
	ErrorIngested(errorType string)
	RetrySimulated(success bool)
	ErrorResolved()
	NotificationSent(err error)
}

// Service is the single entry point for error record operations.
type Service struct {
	store         store.Store
	cache         cache.Cache
	notifier      notify.Notifier
	simulator     *retry.Simulator
	recorder      Recorder
	cacheTTL      time.Duration
	notifyTimeout time.Duration
	now           func() time.Time
}

// Deps are the collaborators of a Service. Store and Simulator are required;
// the rest fall back to no-op implementations.
type Deps struct {
	Store         store.Store
	Cache         cache.Cache
	Notifier      notify.Notifier
	Simulator     *retry.Simulator
	Recorder      Recorder
	CacheTTL      time.Duration
	NotifyTimeout time.Duration
	Now           func() time.Time
}

// NewService creates a Service from deps.
func NewService(deps Deps) *Service {
	s := &Service{
		store:         deps.Store,
		cache:         deps.Cache,
		notifier:      deps.Notifier,
		simulator:     deps.Simulator,
		recorder:      deps.Recorder,
		cacheTTL:      deps.CacheTTL,
		notifyTimeout: deps.NotifyTimeout,
		now:           deps.Now,
	}
	if s.cache == nil {
		s.cache = cache.NoopCache{}
	}
	if s.notifier == nil {
		s.notifier = notify.Noop{}
	}
	if s.simulator == nil {
		s.simulator = retry.NewSimulator(retry.DefaultProfile())
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 30 * time.Second
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = 5 * time.Second
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// StorageMode reports whether records survive a restart.
func (s *Service) StorageMode() store.Mode {
	return s.store.Mode()
}

// Report is an incoming error report.
type Report struct {
	Owner           string
	OccurredAt      time.Time
	IntegrationName string
	ErrorType       string
	ErrorMessage    string
	RawPayload      map[string]any
}

// Submit validates and persists a report, then notifies. Notification
// failures are logged and never fail the submit.
func (s *Service) Submit(ctx context.Context, rep Report) (uuid.UUID, error) {
	rep.Owner = strings.TrimSpace(rep.Owner)
	rep.IntegrationName = strings.TrimSpace(rep.IntegrationName)
	rep.ErrorType = strings.TrimSpace(rep.ErrorType)

	var missing []string
	if rep.Owner == "" {
		missing = append(missing, "userId")
	}
	if rep.OccurredAt.IsZero() {
		missing = append(missing, "timestamp")
	}
	if rep.IntegrationName == "" {
		missing = append(missing, "integrationName")
	}
	if rep.ErrorType == "" {
		missing = append(missing, "errorType")
	}
	if strings.TrimSpace(rep.ErrorMessage) == "" {
		missing = append(missing, "errorMessage")
	}
	if len(missing) > 0 {
		return uuid.Nil, &ValidationError{Fields: missing}
	}

	payload := rep.RawPayload
	if payload == nil {
		payload = map[string]any{}
	}

	rec := &models.ErrorRecord{
		ID:              uuid.New(),
		Owner:           rep.Owner,
		OccurredAt:      rep.OccurredAt.UTC(),
		IntegrationName: rep.IntegrationName,
		ErrorType:       rep.ErrorType,
		ErrorMessage:    rep.ErrorMessage,
		RawPayload:      payload,
		RetryHistory:    []models.RetryResult{},
	}
	if err := s.store.CreateErrorRecord(ctx, rec); err != nil {
		return uuid.Nil, fmt.Errorf("%w: create error record: %w", ErrStorage, err)
	}

	slog.Info("error logged",
		"error_id", rec.ID,
		"owner", rec.Owner,
		"integration", rec.IntegrationName,
		"error_type", rec.ErrorType,
	)
	s.recorder.ErrorIngested(rec.ErrorType)
	s.invalidate(ctx, rec.Owner)
	s.notify(ctx, rec)

	return rec.ID, nil
}

func (s *Service) notify(ctx context.Context, rec *models.ErrorRecord) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	err := s.notifier.Notify(nctx, rec)
	s.recorder.NotificationSent(err)
	if err != nil {
		slog.Warn("notification failed", "error_id", rec.ID, "error", err)
	}
}

// Filter narrows List. Integration and ErrorType accept AllValues.
type Filter struct {
	Owner        string
	Integration  string
	ErrorType    string
	StartDate    time.Time
	EndDate      time.Time
	ShowResolved bool
}

// List returns the owner's matching records, newest first, at most store.MaxListResults.
func (s *Service) List(ctx context.Context, f Filter) ([]*models.ErrorRecord, error) {
	records, err := s.store.ListErrorRecords(ctx, store.RecordFilter{
		Owner:        f.Owner,
		Integration:  filterValue(f.Integration),
		ErrorType:    filterValue(f.ErrorType),
		Start:        f.StartDate,
		End:          f.EndDate,
		ShowResolved: f.ShowResolved,
		Limit:        store.MaxListResults,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list error records: %w", ErrStorage, err)
	}
	return records, nil
}

func filterValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, AllValues) {
		return ""
	}
	return v
}

// FilterOptions returns the owner's distinct integrations and error types, sorted.
func (s *Service) FilterOptions(ctx context.Context, owner string) (*models.FilterOptions, error) {
	var opts models.FilterOptions
	if s.cached(ctx, cache.FilterOptionsKey(owner), &opts) {
		return &opts, nil
	}

	integrations, errorTypes, err := s.store.DistinctValues(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("%w: distinct values: %w", ErrStorage, err)
	}
	sort.Strings(integrations)
	sort.Strings(errorTypes)
	if integrations == nil {
		integrations = []string{}
	}
	if errorTypes == nil {
		errorTypes = []string{}
	}

	opts = models.FilterOptions{Integrations: integrations, ErrorTypes: errorTypes}
	s.putCache(ctx, cache.FilterOptionsKey(owner), opts)
	return &opts, nil
}

// Stats summarizes the owner's records that occurred in the last StatsWindow.
// The most common error type is the one with the highest count; ties go to
// the lexicographically smallest name.
func (s *Service) Stats(ctx context.Context, owner string) (*models.Stats, error) {
	var stats models.Stats
	if s.cached(ctx, cache.StatsKey(owner), &stats) {
		return &stats, nil
	}

	now := s.now()
	counts, err := s.store.WindowCounts(ctx, owner, now.Add(-StatsWindow), now)
	if err != nil {
		return nil, fmt.Errorf("%w: window counts: %w", ErrStorage, err)
	}

	stats = summarize(counts)
	s.putCache(ctx, cache.StatsKey(owner), stats)
	return &stats, nil
}

func summarize(counts []models.WindowCount) models.Stats {
	byType := map[string]int{}
	integrations := map[string]struct{}{}
	total := 0
	for _, c := range counts {
		total += c.Count
		byType[c.ErrorType] += c.Count
		integrations[c.IntegrationName] = struct{}{}
	}

	top, topCount := NoneErrorType, 0
	for t, n := range byType {
		if n > topCount || (n == topCount && t < top) {
			top, topCount = t, n
		}
	}

	return models.Stats{
		TotalErrors:         total,
		MostCommonErrorType: top,
		TotalIntegrations:   len(integrations),
	}
}

// RetryResult is the outcome of Retry.
type RetryResult struct {
	ErrorID uuid.UUID
	Outcome retry.Outcome
	Record  *models.ErrorRecord
}

// Retry simulates a retry of the record and appends the outcome to its history.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*RetryResult, error) {
	rec, err := s.store.GetErrorRecord(ctx, id)
	if err != nil {
		return nil, s.mapStoreErr("get error record", err)
	}

	outcome := s.simulator.Simulate(rec.ErrorType)
	updated, err := s.store.AppendRetry(ctx, id, store.RetryEntry{
		Success:  outcome.Success,
		Message:  outcome.Message,
		Response: outcome.Response,
	})
	if err != nil {
		return nil, s.mapStoreErr("append retry", err)
	}

	slog.Info("retry simulated",
		"error_id", id,
		"error_type", rec.ErrorType,
		"success", outcome.Success,
		"retry_count", updated.RetryCount,
	)
	s.recorder.RetrySimulated(outcome.Success)

	return &RetryResult{ErrorID: id, Outcome: outcome, Record: updated}, nil
}

// ResolveResult is the outcome of Resolve.
type ResolveResult struct {
	ErrorID    uuid.UUID
	Resolved   bool
	ResolvedAt time.Time
}

// Resolve marks the record resolved. Resolving again moves ResolvedAt forward.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (*ResolveResult, error) {
	updated, err := s.store.Resolve(ctx, id, s.now())
	if err != nil {
		return nil, s.mapStoreErr("resolve error record", err)
	}

	slog.Info("error resolved", "error_id", id)
	s.recorder.ErrorResolved()
	s.invalidate(ctx, updated.Owner)

	return &ResolveResult{ErrorID: id, Resolved: updated.Resolved, ResolvedAt: *updated.ResolvedAt}, nil
}

func (s *Service) mapStoreErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// cached decodes key into dst. Cache failures count as a miss.
func (s *Service) cached(ctx context.Context, key string, dst any) bool {
	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		slog.Warn("cache entry undecodable", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Service) putCache(ctx context.Context, key string, v any) {
	if !s.cache.Enabled() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, owner string) {
	if err := s.cache.Delete(ctx, cache.StatsKey(owner), cache.FilterOptionsKey(owner)); err != nil {
		slog.Warn("cache invalidation failed", "owner", owner, "error", err)
	}
}

type nopRecorder struct{}

func (nopRecorder) ErrorIngested(string)   {}
func (nopRecorder) RetrySimulated(bool)    {}
func (nopRecorder) ErrorResolved()         {}
func (nopRecorder) NotificationSent(error) {}
