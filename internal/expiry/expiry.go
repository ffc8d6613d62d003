package expiry

import "time"

// Threshold is how far ahead of expiration a certificate is considered
// expiring soon and therefore due for replacement.
const Threshold = 30 * 24 * time.Hour

// Verdict classifies a certificate's remaining validity.
// Expired implies ExpiringSoon.
type Verdict struct {
	Expired      bool
	ExpiringSoon bool
	NotAfter     time.Time
}

// Evaluate is pure and total: callers must handle the absent-notAfter case
// themselves (a missing certificate is not an expiry question).
func Evaluate(notAfter, now time.Time) Verdict {
	return Verdict{
		Expired:      notAfter.Before(now),
		ExpiringSoon: notAfter.Before(now.Add(Threshold)),
		NotAfter:     notAfter,
	}
}
