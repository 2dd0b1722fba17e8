package storage

import "context"

// Storage is a generic keyed store backing the in-memory repositories.
type Storage interface {
	Get(ctx context.Context, key string) (any, error)
	Put(ctx context.Context, key string, value any) error
	List(ctx context.Context, prefix string, offset, limit uint64) ([]any, uint64, error)
}
