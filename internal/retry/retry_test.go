package retry_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/errorcue/errorcue/internal/retry"
	"github.com/errorcue/errorcue/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(v float64) retry.Option {
	return retry.WithRand(func() float64 { return v })
}

func TestSimulate_CategoryMessages(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := retry.WithClock(func() time.Time { return now })

	tests := []struct {
		errorType string
		draw      float64
		success   bool
		message   string
		response  map[string]any
	}{
		{models.ErrorTypeAuthExpired, 0.69, true, "Authentication refreshed successfully", map[string]any{"tokenRefreshed": true}},
		{models.ErrorTypeAuthExpired, 0.7, false, "Authentication still expired", map[string]any{"tokenRefreshed": false}},
		{models.ErrorTypeRateLimit, 0.1, true, "Rate limit window reset", map[string]any{"rateLimitReset": "2025-06-01T13:00:00Z"}},
		{models.ErrorTypeRateLimit, 0.5, false, "Still rate limited", map[string]any{"rateLimitReset": "2025-06-01T13:00:00Z"}},
		{models.ErrorTypeConnectionFailed, 0.3, true, "Connection restored", map[string]any{"connectionTest": "pass"}},
		{models.ErrorTypeConnectionFailed, 0.9, false, "Connection still failing", map[string]any{"connectionTest": "fail"}},
		{models.ErrorTypeInvalidData, 0.2, true, "Retry successful", map[string]any{"retryAttempt": true}},
		{"SOMETHING_NEW", 0.8, false, "Retry failed", map[string]any{"retryAttempt": true}},
	}

	for _, tt := range tests {
		t.Run(tt.errorType+"/"+tt.message, func(t *testing.T) {
			sim := retry.NewSimulator(retry.DefaultProfile(), fixed(tt.draw), clock)
			out := sim.Simulate(tt.errorType)
			assert.Equal(t, tt.success, out.Success)
			assert.Equal(t, tt.message, out.Message)
			assert.Equal(t, tt.response, out.Response)
		})
	}
}

func TestSimulate_RateRoughlyHonoured(t *testing.T) {
	sim := retry.NewSimulator(retry.DefaultProfile())

	const n = 4000
	successes := 0
	for i := 0; i < n; i++ {
		if sim.Simulate(models.ErrorTypeRateLimit).Success {
			successes++
		}
	}
	rate := float64(successes) / n
	assert.InDelta(t, 0.2, rate, 0.05)
}

func TestSimulate_ConcurrentUse(t *testing.T) {
	sim := retry.NewSimulator(retry.DefaultProfile())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := sim.Simulate(models.ErrorTypeAuthExpired)
			assert.NotEmpty(t, out.Message)
		}()
	}
	wg.Wait()
}

func TestParseProfile_Overrides(t *testing.T) {
	p, err := retry.ParseProfile([]byte(`
default:
  success_rate: 0.1
categories:
  RATE_LIMIT:
    success_rate: 1
  TIMEOUT:
    success_rate: 0.4
    success_message: Timeout cleared
`))
	require.NoError(t, err)

	assert.Equal(t, 0.1, p.Default.SuccessRate)
	assert.Equal(t, "Retry successful", p.Default.SuccessMessage)

	rl := p.For(models.ErrorTypeRateLimit)
	assert.Equal(t, 1.0, rl.SuccessRate)
	assert.Equal(t, "Rate limit window reset", rl.SuccessMessage)

	to := p.For(models.ErrorTypeTimeout)
	assert.Equal(t, 0.4, to.SuccessRate)
	assert.Equal(t, "Timeout cleared", to.SuccessMessage)
	assert.Equal(t, "Retry failed", to.FailureMessage)

	assert.Equal(t, 0.7, p.For(models.ErrorTypeAuthExpired).SuccessRate)
}

func TestParseProfile_ZeroRateIsKept(t *testing.T) {
	p, err := retry.ParseProfile([]byte("categories:\n  AUTH_EXPIRED:\n    success_rate: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.For(models.ErrorTypeAuthExpired).SuccessRate)

	sim := retry.NewSimulator(p, fixed(0))
	assert.False(t, sim.Simulate(models.ErrorTypeAuthExpired).Success)
}

func TestParseProfile_RejectsBadRate(t *testing.T) {
	_, err := retry.ParseProfile([]byte("categories:\n  RATE_LIMIT:\n    success_rate: 1.5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT")

	_, err = retry.ParseProfile([]byte("default:\n  success_rate: -0.1\n"))
	require.Error(t, err)
}

func TestParseProfile_InvalidYAML(t *testing.T) {
	_, err := retry.ParseProfile([]byte("categories: [unterminated"))
	assert.Error(t, err)
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories:\n  CONNECTION_FAILED:\n    success_rate: 0.25\n"), 0o600))

	p, err := retry.LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, p.For(models.ErrorTypeConnectionFailed).SuccessRate)

	_, err = retry.LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
