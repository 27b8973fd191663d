// Package ids generates adapter instance identities.
//
// Each running adapter gets exactly one identity at construction time. The
// identity distinguishes "this instance produced this log record" from
// "another instance produced it", which is what keeps a node from
// re-dispatching its own broadcasts.
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

// NewIdentity returns a fresh instance identity: a time-sortable ULID encoded
// as a 26-character string. Identities are unique per adapter instance, not
// per host; two adapters on one machine get two identities.
func NewIdentity() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}
