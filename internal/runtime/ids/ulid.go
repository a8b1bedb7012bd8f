package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
// Outbound frames carry one as their watermill message UUID.
func CreateULID() string {
	return createAt(time.Now())
}

func createAt(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// Time extracts the millisecond timestamp a ULID was minted at.
func Time(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

// Age reports how long ago id was minted, relative to now. Ids that are not
// ULIDs, or that claim to come from the future, report false.
func Age(id string, now time.Time) (time.Duration, bool) {
	minted, err := Time(id)
	if err != nil {
		return 0, false
	}
	age := now.Sub(minted)
	if age < 0 {
		return 0, false
	}
	return age, true
}
