package types

import (
	"context"
	"iter"
)

// Store defines the object operations the lifecycle pipeline needs.
type Store interface {
	// List yields every object in container once. Iteration stops at the first error.
	List(ctx context.Context, container string) iter.Seq2[ObjectRef, error]

	Stat(ctx context.Context, ref ObjectRef) (ObjectMetadata, error)

	// Copy duplicates src to dst, overwriting dst and carrying the source creation time.
	Copy(ctx context.Context, src, dst ObjectRef) error

	Get(ctx context.Context, ref ObjectRef) ([]byte, error)
	Put(ctx context.Context, ref ObjectRef, data []byte, contentType string) error

	// Delete fails with OBJECT_NOT_FOUND if ref is already absent.
	Delete(ctx context.Context, ref ObjectRef) error
}

// Pinger is implemented by stores that can check a container is reachable.
type Pinger interface {
	Ping(ctx context.Context, container string) error
}

// Closer is implemented by stores holding connections that must be released.
type Closer interface {
	Close() error
}
