package errorlog_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/errorcue/errorcue/internal/cache"
	"github.com/errorcue/errorcue/internal/errorlog"
	"github.com/errorcue/errorcue/internal/retry"
	"github.com/errorcue/errorcue/internal/store"
	"github.com/errorcue/errorcue/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Stubs ---

type stubNotifier struct {
	mu    sync.Mutex
	calls []*models.ErrorRecord
	err   error
	block time.Duration
}

func (n *stubNotifier) Notify(ctx context.Context, rec *models.ErrorRecord) error {
	if n.block > 0 {
		select {
		case <-time.After(n.block):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, rec)
	return n.err
}

func (n *stubNotifier) Name() string { return "stub" }

type failingStore struct {
	store.Store
}

var errConnReset = fmt.Errorf("%w: connection reset", store.ErrUnavailable)

func (failingStore) CreateErrorRecord(context.Context, *models.ErrorRecord) error {
	return errConnReset
}

func (failingStore) ListErrorRecords(context.Context, store.RecordFilter) ([]*models.ErrorRecord, error) {
	return nil, errConnReset
}

func (failingStore) GetErrorRecord(context.Context, uuid.UUID) (*models.ErrorRecord, error) {
	return nil, errConnReset
}

type countingRecorder struct {
	mu            sync.Mutex
	ingested      int
	retries       int
	resolved      int
	notifications int
}

func (r *countingRecorder) ErrorIngested(string) { r.mu.Lock(); r.ingested++; r.mu.Unlock() }
func (r *countingRecorder) RetrySimulated(bool)  { r.mu.Lock(); r.retries++; r.mu.Unlock() }
func (r *countingRecorder) ErrorResolved()       { r.mu.Lock(); r.resolved++; r.mu.Unlock() }
func (r *countingRecorder) NotificationSent(error) {
	r.mu.Lock()
	r.notifications++
	r.mu.Unlock()
}

// --- Helpers ---

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, deps errorlog.Deps) *errorlog.Service {
	t.Helper()
	if deps.Store == nil {
		deps.Store = store.NewMemoryStore()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return fixedNow }
	}
	return errorlog.NewService(deps)
}

func validReport() errorlog.Report {
	return errorlog.Report{
		Owner:           "alice",
		OccurredAt:      fixedNow.Add(-time.Hour),
		IntegrationName: "Zapier",
		ErrorType:       models.ErrorTypeRateLimit,
		ErrorMessage:    "API rate limit exceeded",
		RawPayload:      map[string]any{"zapId": "ZAP-1"},
	}
}

func submit(t *testing.T, svc *errorlog.Service, rep errorlog.Report) uuid.UUID {
	t.Helper()
	id, err := svc.Submit(context.Background(), rep)
	require.NoError(t, err)
	return id
}

// --- Submit ---

func TestSubmit_ThenListIncludesRecord(t *testing.T) {
	notifier := &stubNotifier{}
	svc := newService(t, errorlog.Deps{Notifier: notifier})

	id := submit(t, svc, validReport())

	records, err := svc.List(context.Background(), errorlog.Filter{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, 0, records[0].RetryCount)
	assert.False(t, records[0].Resolved)
	assert.Empty(t, records[0].RetryHistory)

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, id, notifier.calls[0].ID)
}

func TestSubmit_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*errorlog.Report)
		fields []string
	}{
		{"owner", func(r *errorlog.Report) { r.Owner = "" }, []string{"userId"}},
		{"timestamp", func(r *errorlog.Report) { r.OccurredAt = time.Time{} }, []string{"timestamp"}},
		{"integration blank", func(r *errorlog.Report) { r.IntegrationName = "   " }, []string{"integrationName"}},
		{"error type", func(r *errorlog.Report) { r.ErrorType = "" }, []string{"errorType"}},
		{"message", func(r *errorlog.Report) { r.ErrorMessage = "\t" }, []string{"errorMessage"}},
		{"everything", func(r *errorlog.Report) { *r = errorlog.Report{} },
			[]string{"userId", "timestamp", "integrationName", "errorType", "errorMessage"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemoryStore()
			notifier := &stubNotifier{}
			svc := newService(t, errorlog.Deps{Store: st, Notifier: notifier})

			rep := validReport()
			tt.mutate(&rep)
			_, err := svc.Submit(context.Background(), rep)

			var verr *errorlog.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.fields, verr.Fields)

			n, err := st.CountErrorRecords(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
			assert.Empty(t, notifier.calls)
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &errorlog.ValidationError{Fields: []string{"userId", "timestamp", "integrationName", "errorType", "errorMessage"}}
	assert.Equal(t, "Missing required fields: userId, timestamp, integrationName, errorType, errorMessage", err.Error())
}

func TestSubmit_NotifierFailureIsSwallowed(t *testing.T) {
	notifier := &stubNotifier{err: errors.New("slack down")}
	recorder := &countingRecorder{}
	svc := newService(t, errorlog.Deps{Notifier: notifier, Recorder: recorder})

	id, err := svc.Submit(context.Background(), validReport())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, 1, recorder.ingested)
	assert.Equal(t, 1, recorder.notifications)
}

func TestSubmit_NotifierIsBounded(t *testing.T) {
	notifier := &stubNotifier{block: 5 * time.Second}
	svc := newService(t, errorlog.Deps{Notifier: notifier, NotifyTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := svc.Submit(context.Background(), validReport())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSubmit_StorageFailure(t *testing.T) {
	svc := newService(t, errorlog.Deps{Store: failingStore{Store: store.NewMemoryStore()}})

	_, err := svc.Submit(context.Background(), validReport())
	assert.ErrorIs(t, err, errorlog.ErrStorage)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestSubmit_NilPayloadDefaultsToEmptyMap(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	rep := validReport()
	rep.RawPayload = nil
	submit(t, svc, rep)

	records, err := svc.List(context.Background(), errorlog.Filter{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]any{}, records[0].RawPayload)
}

func TestSubmit_RawPayloadRoundTrip(t *testing.T) {
	svc := newService(t, errorlog.Deps{})

	var payload map[string]any
	raw, err := json.Marshal(map[string]any{
		"customer": map[string]any{
			"name":    gofakeit.Name(),
			"email":   gofakeit.Email(),
			"address": map[string]any{"city": gofakeit.City(), "zip": gofakeit.Zip()},
		},
		"items":   []any{gofakeit.Word(), gofakeit.Number(1, 99), gofakeit.Bool(), nil},
		"attempt": gofakeit.Float64Range(0, 1),
	})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &payload))

	rep := validReport()
	rep.RawPayload = payload
	submit(t, svc, rep)

	records, err := svc.List(context.Background(), errorlog.Filter{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	got, err := json.Marshal(records[0].RawPayload)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(got))
}

// --- List ---

func TestList_IntegrationFilterScenario(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	id := submit(t, svc, validReport())

	zapier, err := svc.List(context.Background(), errorlog.Filter{Owner: "alice", Integration: "Zapier"})
	require.NoError(t, err)
	require.Len(t, zapier, 1)
	assert.Equal(t, id, zapier[0].ID)

	n8n, err := svc.List(context.Background(), errorlog.Filter{Owner: "alice", Integration: "n8n"})
	require.NoError(t, err)
	assert.Empty(t, n8n)
}

func TestList_AllIsWildcard(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	submit(t, svc, validReport())
	rep := validReport()
	rep.IntegrationName = "n8n"
	rep.ErrorType = models.ErrorTypeTimeout
	submit(t, svc, rep)

	records, err := svc.List(context.Background(), errorlog.Filter{Owner: "alice", Integration: "all", ErrorType: "ALL"})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestList_OwnerIsolation(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	submit(t, svc, validReport())
	rep := validReport()
	rep.Owner = "bob"
	bobID := submit(t, svc, rep)

	filters := []errorlog.Filter{
		{Owner: "bob"},
		{Owner: "bob", Integration: "all", ErrorType: "all", ShowResolved: true},
		{Owner: "bob", Integration: "Zapier", StartDate: fixedNow.Add(-48 * time.Hour), EndDate: fixedNow},
	}
	for _, f := range filters {
		records, err := svc.List(context.Background(), f)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, bobID, records[0].ID)
		assert.Equal(t, "bob", records[0].Owner)
	}
}

func TestList_StorageFailure(t *testing.T) {
	svc := newService(t, errorlog.Deps{Store: failingStore{Store: store.NewMemoryStore()}})
	_, err := svc.List(context.Background(), errorlog.Filter{Owner: "alice"})
	assert.ErrorIs(t, err, errorlog.ErrStorage)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestRetry_StorageFailureKeepsCause(t *testing.T) {
	svc := newService(t, errorlog.Deps{Store: failingStore{Store: store.NewMemoryStore()}})
	_, err := svc.Retry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errorlog.ErrStorage)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.NotErrorIs(t, err, errorlog.ErrNotFound)
}

// --- FilterOptions ---

func TestFilterOptions_SortedDistinct(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	for _, pair := range [][2]string{
		{"n8n", models.ErrorTypeTimeout},
		{"Zapier", models.ErrorTypeAuthExpired},
		{"Make.com", models.ErrorTypeTimeout},
		{"Zapier", models.ErrorTypeRateLimit},
	} {
		rep := validReport()
		rep.IntegrationName, rep.ErrorType = pair[0], pair[1]
		submit(t, svc, rep)
	}

	opts, err := svc.FilterOptions(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"Make.com", "Zapier", "n8n"}, opts.Integrations)
	assert.Equal(t, []string{models.ErrorTypeAuthExpired, models.ErrorTypeRateLimit, models.ErrorTypeTimeout}, opts.ErrorTypes)
}

func TestFilterOptions_EmptyOwner(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	opts, err := svc.FilterOptions(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, opts.Integrations)
	assert.NotNil(t, opts.ErrorTypes)
	assert.Empty(t, opts.Integrations)
}

// --- Stats ---

func TestStats_EmptyWindow(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	rep := validReport()
	rep.OccurredAt = fixedNow.Add(-8 * 24 * time.Hour)
	submit(t, svc, rep)

	stats, err := svc.Stats(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.Stats{TotalErrors: 0, MostCommonErrorType: "None", TotalIntegrations: 0}, *stats)
}

func TestStats_MostCommonScenario(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	for i := 0; i < 3; i++ {
		rep := validReport()
		rep.ErrorType = models.ErrorTypeAuthExpired
		rep.IntegrationName = []string{"Zapier", "n8n", "Zapier"}[i]
		submit(t, svc, rep)
	}
	submit(t, svc, validReport())

	stats, err := svc.Stats(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalErrors)
	assert.Equal(t, models.ErrorTypeAuthExpired, stats.MostCommonErrorType)
	assert.Equal(t, 2, stats.TotalIntegrations)
}

func TestStats_TieBreaksLexicographically(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	for _, et := range []string{models.ErrorTypeTimeout, models.ErrorTypeRateLimit, models.ErrorTypeTimeout, models.ErrorTypeRateLimit} {
		rep := validReport()
		rep.ErrorType = et
		submit(t, svc, rep)
	}

	stats, err := svc.Stats(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.ErrorTypeRateLimit, stats.MostCommonErrorType)
}

func TestStats_WindowBounds(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	for _, at := range []time.Time{
		fixedNow.Add(-errorlog.StatsWindow),
		fixedNow,
		fixedNow.Add(time.Minute),
		fixedNow.Add(-errorlog.StatsWindow - time.Second),
	} {
		rep := validReport()
		rep.OccurredAt = at
		submit(t, svc, rep)
	}

	stats, err := svc.Stats(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalErrors)
}

// --- Retry ---

func TestRetry_AppendsOutcome(t *testing.T) {
	sim := retry.NewSimulator(retry.DefaultProfile(), retry.WithRand(func() float64 { return 0.99 }))
	recorder := &countingRecorder{}
	svc := newService(t, errorlog.Deps{Simulator: sim, Recorder: recorder})
	id := submit(t, svc, validReport())

	res, err := svc.Retry(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, res.ErrorID)
	assert.False(t, res.Outcome.Success)
	assert.Equal(t, "Still rate limited", res.Outcome.Message)
	assert.Contains(t, res.Outcome.Response, "rateLimitReset")
	assert.Equal(t, 1, res.Record.RetryCount)
	assert.False(t, res.Record.Resolved)
	assert.Equal(t, 1, recorder.retries)
}

func TestRetry_NotFound(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	_, err := svc.Retry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errorlog.ErrNotFound)
}

func TestRetry_Concurrent(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	id := submit(t, svc, validReport())

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Retry(context.Background(), id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := svc.List(context.Background(), errorlog.Filter{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, n, rec.RetryCount)
	require.Len(t, rec.RetryHistory, n)
	for i := 1; i < n; i++ {
		assert.True(t, rec.RetryHistory[i].Timestamp.After(rec.RetryHistory[i-1].Timestamp))
	}
}

// --- Resolve ---

func TestResolve_HidesFromDefaultList(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	id := submit(t, svc, validReport())

	res, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	assert.True(t, fixedNow.Equal(res.ResolvedAt))

	hidden, err := svc.List(context.Background(), errorlog.Filter{Owner: "alice"})
	require.NoError(t, err)
	assert.Empty(t, hidden)

	shown, err := svc.List(context.Background(), errorlog.Filter{Owner: "alice", ShowResolved: true})
	require.NoError(t, err)
	require.Len(t, shown, 1)
	assert.Equal(t, id, shown[0].ID)
}

func TestResolve_Twice(t *testing.T) {
	now := fixedNow
	svc := newService(t, errorlog.Deps{Now: func() time.Time { return now }})
	id := submit(t, svc, validReport())

	_, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)

	now = fixedNow.Add(time.Hour)
	res, err := svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, now.Equal(res.ResolvedAt))
}

func TestResolve_NotFound(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	_, err := svc.Resolve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errorlog.ErrNotFound)
}

// --- Caching ---

func TestStats_CachedAndInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)

	svc := newService(t, errorlog.Deps{Cache: rc, CacheTTL: time.Minute})
	id := submit(t, svc, validReport())

	stats, err := svc.Stats(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalErrors)
	assert.True(t, mr.Exists(cache.StatsKey("alice")))

	_, err = svc.FilterOptions(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.FilterOptionsKey("alice")))

	submit(t, svc, validReport())
	assert.False(t, mr.Exists(cache.StatsKey("alice")))
	assert.False(t, mr.Exists(cache.FilterOptionsKey("alice")))

	stats, err = svc.Stats(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalErrors)

	_, err = svc.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.StatsKey("alice")))
}

func TestStats_CacheDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)
	mr.Close()

	svc := newService(t, errorlog.Deps{Cache: rc})
	submit(t, svc, validReport())

	stats, err := svc.Stats(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalErrors)
}

func TestStorageMode(t *testing.T) {
	svc := newService(t, errorlog.Deps{})
	assert.Equal(t, store.ModeDemo, svc.StorageMode())
}
