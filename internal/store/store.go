package store

import (
	"context"
	"errors"
	"time"

	"github.com/errorcue/errorcue/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrUnavailable = errors.New("store unavailable")

// MaxListResults caps every ListErrorRecords call.
const MaxListResults = 100

// Mode reports whether a store keeps data across restarts.
type Mode string

const (
	ModeDurable Mode = "durable"
	ModeDemo    Mode = "demo"
)

// Store is the data access interface. All record operations go through here.
// AppendRetry and Resolve must be atomic per record.
type Store interface {
	Ping(ctx context.Context) error
	Mode() Mode

	CreateErrorRecord(ctx context.Context, rec *models.ErrorRecord) error
	GetErrorRecord(ctx context.Context, id uuid.UUID) (*models.ErrorRecord, error)
	ListErrorRecords(ctx context.Context, filter RecordFilter) ([]*models.ErrorRecord, error)
	CountErrorRecords(ctx context.Context) (int, error)

	DistinctValues(ctx context.Context, owner string) (integrations []string, errorTypes []string, err error)
	WindowCounts(ctx context.Context, owner string, from, to time.Time) ([]models.WindowCount, error)

	AppendRetry(ctx context.Context, id uuid.UUID, entry RetryEntry) (*models.ErrorRecord, error)
	Resolve(ctx context.Context, id uuid.UUID, at time.Time) (*models.ErrorRecord, error)
}

// RecordFilter narrows ListErrorRecords. Empty strings and zero times mean "no filter".
type RecordFilter struct {
	Owner        string
	Integration  string
	ErrorType    string
	Start        time.Time
	End          time.Time
	ShowResolved bool
	Limit        int
}

// RetryEntry is a retry outcome to append. The store stamps the time.
type RetryEntry struct {
	Success  bool
	Message  string
	Response map[string]any
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > MaxListResults {
		return MaxListResults
	}
	return limit
}
