// Package id generates identifiers for ingestion runs and HTTP requests.
//
// Usage:
//
//	runID := id.NewULID()  // e.g., "01ARZ3NDEKTSV4RRFFQ69G5FAV"
//	reqID := id.NewUUID()  // e.g., "550e8400-e29b-41d4-a716-446655440000"
package id

import (
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrInvalidUUID is returned when a UUID string is invalid.
	ErrInvalidUUID = errors.New("invalid UUID format")

	// ErrInvalidULID is returned when a ULID string is invalid.
	ErrInvalidULID = errors.New("invalid ULID format")
)

// Generator creates unique ids.
type Generator interface {
	Generate() string
}

// ULIDGenerator produces monotonic ULIDs. It is safe for concurrent use.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewULIDGenerator creates a generator reading entropy from r, or crypto/rand when r is nil.
func NewULIDGenerator(r io.Reader) *ULIDGenerator {
	if r == nil {
		r = rand.Reader
	}
	return &ULIDGenerator{
		entropy: ulid.Monotonic(r, 0),
		now:     time.Now,
	}
}

// Generate creates a new ULID string.
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// UUIDGenerator produces random v4 UUIDs.
type UUIDGenerator struct{}

// Generate creates a new UUID string.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

var (
	defaultULID     *ULIDGenerator
	defaultULIDOnce sync.Once
)

// NewULID generates a new ULID string with the shared generator.
func NewULID() string {
	defaultULIDOnce.Do(func() {
		defaultULID = NewULIDGenerator(nil)
	})
	return defaultULID.Generate()
}

// NewUUID generates a new UUID v4 string.
func NewUUID() string {
	return UUIDGenerator{}.Generate()
}

// ParseULID validates s and returns its embedded timestamp.
func ParseULID(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, ErrInvalidULID
	}
	return ulid.Time(u.Time()), nil
}

// ValidUUID reports whether s is a well-formed UUID.
func ValidUUID(s string) error {
	if err := uuid.Validate(s); err != nil {
		return ErrInvalidUUID
	}
	return nil
}
