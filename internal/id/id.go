// Package id issues ULID event identifiers for journal rows.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   io.Reader
)

func init() {
	// ulid.Monotonic wants a seeded PRNG. Seeding it from crypto/rand
	// keeps IDs unguessable across restarts; the monotonic wrapper keeps
	// IDs issued within one millisecond strictly increasing.
	var seed int64
	if err := binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed); err != nil || seed == 0 {
		seed = time.Now().UnixNano()
	}
	entropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a fresh ULID string. ULIDs sort lexicographically by
// creation time, so journal rows keyed on them read back in settlement
// order.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), entropy)
	if err != nil {
		// ulid.New only fails on a broken clock or entropy source.
		panic(err)
	}
	return id.String()
}
