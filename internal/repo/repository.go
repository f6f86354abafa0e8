package repo

import "context"

// Storage keys shared by the foreground engine and the background runner.
const (
	KeyEndpoints  = "endpoints"
	KeyInterval   = "interval"
	KeyStatuses   = "statuses"
	KeyMonitoring = "monitoring"
	KeySeeded     = "seeded"
)

// KV is the durable key-value port. Values are JSON documents.
// Get returns ok=false when the key has never been set.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
