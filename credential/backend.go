package credential

import "context"

// Backend is the shared key-value boundary behind a Store.
//
// SetMany and DeleteMany must apply all keys as one atomic operation and publish one
// Change per key tagged with origin. Subscribe delivers changes from every origin
// until ctx is done, then closes the channel.
type Backend interface {
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	SetMany(ctx context.Context, origin string, values map[string]string) error
	DeleteMany(ctx context.Context, origin string, keys ...string) error
	Subscribe(ctx context.Context) (<-chan Change, error)
}
