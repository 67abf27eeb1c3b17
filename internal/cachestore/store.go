package cachestore

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"time"
)

// FormatVersion is the current persisted envelope schema version. Envelopes
// written with any other version are treated as a total cache miss, never
// partially migrated.
const FormatVersion = 2

// Well-known cache keys
const (
	KeyAssets            = "assets"
	KeyMetadataOverrides = "metadata-overrides"
)

// Envelope wraps any persisted payload with its write timestamp and schema
// version.
type Envelope struct {
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	FormatVersion int             `json:"formatVersion"`
}

// Decode unmarshals the envelope payload into v
func (e *Envelope) Decode(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Store is the persistent key/value backend for cache snapshots. Backends
// must make writes atomic: a reader never observes a partially written value.
//
//go:generate mockgen -source=store.go -destination=../mocks/cachestore.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	// Get returns the envelope stored under key. A missing key, a corrupt
	// payload, or a format version mismatch all yield (nil, nil): callers
	// treat every one of them as a cache miss.
	Get(ctx context.Context, key string) (*Envelope, error)

	// Set serializes data into an envelope stamped with timestamp and the
	// current format version, and stores it under key. Writes to the same
	// key are serialized; writes to distinct keys proceed independently.
	Set(ctx context.Context, key string, data interface{}, timestamp time.Time) error

	// Delete removes the entry under key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an entry is stored under key
	Exists(ctx context.Context, key string) (bool, error)
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeKey maps a logical cache key to an identifier that is safe for any
// backend (file name, redis key segment).
func SanitizeKey(key string) string {
	return unsafeKeyChars.ReplaceAllString(key, "-")
}

// keyedMutex serializes writers per cache key. A second writer to the same
// key waits for the first to finish; writers to other keys are not blocked.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it on first use. The returned
// unlock function releases it.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// encode builds the serialized envelope for a payload
func encode(data interface{}, timestamp time.Time) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Data:          payload,
		Timestamp:     timestamp,
		FormatVersion: FormatVersion,
	})
}
