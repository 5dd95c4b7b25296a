package tempstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultExpire is how long an untouched entry survives.
const DefaultExpire = 7 * 24 * time.Hour

// Metadata describes who last wrote an entry and when.
type Metadata struct {
	Owner   string    `json:"owner"`
	Updated time.Time `json:"updated"`
}

// Store is a collection-scoped key/value store for in-progress wizard values.
// Writes to a single key are atomic; read-modify-write across calls is not.
type Store interface {
	// Get returns the value stored under key, or nil when absent or expired.
	Get(ctx context.Context, key string) (map[string]any, error)
	// Set stores value under key, recording the owner and write time.
	Set(ctx context.Context, key string, value map[string]any) error
	// SetIfNotExists stores value only when key is absent. It reports whether
	// the value was written.
	SetIfNotExists(ctx context.Context, key string, value map[string]any) (bool, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Metadata returns ownership information for key, or nil when absent.
	Metadata(ctx context.Context, key string) (*Metadata, error)
}

// Factory hands out stores scoped by collection name.
type Factory interface {
	Get(collection string) Store
}

// Option configures a store factory.
type Option func(*options)

type options struct {
	owner  string
	expire time.Duration
	now    func() time.Time
}

func defaultOptions() options {
	return options{
		owner:  "anonymous",
		expire: DefaultExpire,
		now:    time.Now,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithOwner sets the owner recorded when the context carries none.
func WithOwner(owner string) Option {
	return func(o *options) {
		if owner != "" {
			o.owner = owner
		}
	}
}

// WithExpire sets the entry lifetime. Non-positive values keep the default.
func WithExpire(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.expire = d
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

type ownerKey struct{}

// ContextWithOwner attaches the owner recorded by writes made with ctx.
func ContextWithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

func (o options) ownerFrom(ctx context.Context) string {
	if owner, ok := ctx.Value(ownerKey{}).(string); ok && owner != "" {
		return owner
	}
	return o.owner
}

// record is the serialised form shared by the SQLite and Redis backends.
type record struct {
	Owner   string         `json:"owner"`
	Updated time.Time      `json:"updated"`
	Expire  time.Time      `json:"expire"`
	Data    map[string]any `json:"data"`
}

func encodeValue(value map[string]any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding value: %w", err)
	}
	return data, nil
}

func decodeValue(data []byte) (map[string]any, error) {
	var value map[string]any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("decoding value: %w", err)
	}
	return value, nil
}

// clone copies value through its JSON form so every backend hands back the
// same shapes (numbers as float64, slices as []any).
func clone(value map[string]any) (map[string]any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := encodeValue(value)
	if err != nil {
		return nil, err
	}
	return decodeValue(data)
}
