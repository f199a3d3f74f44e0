// Package archive writes raw execution payloads to durable object storage
// before they are published to the trades log, so that a bad encode or a
// downstream outage never loses the original bytes.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists raw bytes under a generated key and can read them back by
// that key. Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// KeyFor builds the canonical archive key layout for a timestamp:
// fix/{yyyy}/{MM}/{dd}/{HH}/{uuid}.fix
func KeyFor(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("fix/%04d/%02d/%02d/%02d/%s.fix",
		t.Year(), t.Month(), t.Day(), t.Hour(), uuid.NewString())
}
