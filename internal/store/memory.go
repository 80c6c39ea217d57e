package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/errorcue/errorcue/pkg/models"
	"github.com/google/uuid"
)

// MemoryStore is the non-durable demo backend. All state lives in process
// memory and is lost on restart. Records handed out are copies.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*models.ErrorRecord
	order   []uuid.UUID
	now     func() time.Time
	lastTS  time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID]*models.ErrorRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Mode() Mode { return ModeDemo }

func (s *MemoryStore) CreateErrorRecord(_ context.Context, rec *models.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if _, exists := s.records[rec.ID]; exists {
		return ErrDuplicateKey
	}
	if rec.RawPayload == nil {
		rec.RawPayload = map[string]any{}
	}
	if rec.RetryHistory == nil {
		rec.RetryHistory = []models.RetryResult{}
	}
	rec.RetryCount = len(rec.RetryHistory)

	now := s.stamp()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	s.records[rec.ID] = copyRecord(rec)
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *MemoryStore) GetErrorRecord(_ context.Context, id uuid.UUID) (*models.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) ListErrorRecords(_ context.Context, filter RecordFilter) ([]*models.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*models.ErrorRecord{}
	for _, id := range s.order {
		rec := s.records[id]
		if rec.Owner != filter.Owner {
			continue
		}
		if !filter.ShowResolved && rec.Resolved {
			continue
		}
		if filter.Integration != "" && rec.IntegrationName != filter.Integration {
			continue
		}
		if filter.ErrorType != "" && rec.ErrorType != filter.ErrorType {
			continue
		}
		if !filter.Start.IsZero() && rec.OccurredAt.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && rec.OccurredAt.After(filter.End) {
			continue
		}
		out = append(out, copyRecord(rec))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if limit := normalizeLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountErrorRecords(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *MemoryStore) DistinctValues(_ context.Context, owner string) ([]string, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	integrations := map[string]struct{}{}
	errorTypes := map[string]struct{}{}
	for _, rec := range s.records {
		if rec.Owner != owner {
			continue
		}
		integrations[rec.IntegrationName] = struct{}{}
		errorTypes[rec.ErrorType] = struct{}{}
	}
	return keys(integrations), keys(errorTypes), nil
}

func (s *MemoryStore) WindowCounts(_ context.Context, owner string, from, to time.Time) ([]models.WindowCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type group struct{ errorType, integration string }
	counts := map[group]int{}
	for _, rec := range s.records {
		if rec.Owner != owner || rec.OccurredAt.Before(from) || rec.OccurredAt.After(to) {
			continue
		}
		counts[group{rec.ErrorType, rec.IntegrationName}]++
	}

	var out []models.WindowCount
	for g, n := range counts {
		out = append(out, models.WindowCount{ErrorType: g.errorType, IntegrationName: g.integration, Count: n})
	}
	return out, nil
}

func (s *MemoryStore) AppendRetry(_ context.Context, id uuid.UUID, entry RetryEntry) (*models.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	response := copyMap(entry.Response)
	if response == nil {
		response = map[string]any{}
	}
	at := s.stamp()
	rec.RetryHistory = append(rec.RetryHistory, models.RetryResult{
		Timestamp: at,
		Success:   entry.Success,
		Message:   entry.Message,
		Response:  response,
	})
	rec.RetryCount = len(rec.RetryHistory)
	rec.LastRetryAt = &at
	rec.UpdatedAt = at
	return copyRecord(rec), nil
}

func (s *MemoryStore) Resolve(_ context.Context, id uuid.UUID, at time.Time) (*models.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	resolvedAt := at
	rec.Resolved = true
	rec.ResolvedAt = &resolvedAt
	rec.UpdatedAt = s.stamp()
	return copyRecord(rec), nil
}

// stamp returns a timestamp strictly after every earlier stamp. Callers hold mu.
func (s *MemoryStore) stamp() time.Time {
	t := s.now().Truncate(time.Microsecond)
	if !t.After(s.lastTS) {
		t = s.lastTS.Add(time.Microsecond)
	}
	s.lastTS = t
	return t
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func copyRecord(rec *models.ErrorRecord) *models.ErrorRecord {
	c := *rec
	c.RawPayload = copyMap(rec.RawPayload)
	if rec.ResolvedAt != nil {
		t := *rec.ResolvedAt
		c.ResolvedAt = &t
	}
	if rec.LastRetryAt != nil {
		t := *rec.LastRetryAt
		c.LastRetryAt = &t
	}
	c.RetryHistory = make([]models.RetryResult, len(rec.RetryHistory))
	for i, r := range rec.RetryHistory {
		r.Response = copyMap(r.Response)
		c.RetryHistory[i] = r
	}
	return &c
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

var _ Store = (*MemoryStore)(nil)
