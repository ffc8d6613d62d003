package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name         string
		notAfter     time.Time
		expired      bool
		expiringSoon bool
	}{
		{
			name:     "far from expiry",
			notAfter: now.Add(90 * 24 * time.Hour),
		},
		{
			name:     "exactly at the threshold is not expiring soon",
			notAfter: now.Add(Threshold),
		},
		{
			name:         "one second inside the threshold",
			notAfter:     now.Add(Threshold - time.Second),
			expiringSoon: true,
		},
		{
			name:         "one day out",
			notAfter:     now.Add(24 * time.Hour),
			expiringSoon: true,
		},
		{
			name:     "expires exactly now is not yet expired",
			notAfter: now,
			// Before(now) is strict, so the boundary instant counts as
			// still valid but inside the renewal window.
			expiringSoon: true,
		},
		{
			name:         "already expired",
			notAfter:     now.Add(-time.Second),
			expired:      true,
			expiringSoon: true,
		},
		{
			name:         "long expired",
			notAfter:     now.Add(-365 * 24 * time.Hour),
			expired:      true,
			expiringSoon: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := Evaluate(tc.notAfter, now)
			assert.Equal(t, tc.expired, verdict.Expired, "Expired")
			assert.Equal(t, tc.expiringSoon, verdict.ExpiringSoon, "ExpiringSoon")
			assert.Equal(t, tc.notAfter, verdict.NotAfter)
		})
	}
}

// An expired certificate is always also expiring soon; the two flags never
// disagree in that direction.
func TestEvaluateExpiredImpliesExpiringSoon(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for days := -400; days <= 400; days += 7 {
		verdict := Evaluate(now.Add(time.Duration(days)*24*time.Hour), now)
		if verdict.Expired {
			assert.True(t, verdict.ExpiringSoon, "expired at %d days but not expiring soon", days)
		}
	}
}
