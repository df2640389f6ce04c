package db

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("entity not found")

// UpdateFunc receives the current value (nil when absent) and returns the
// value to store. Returning a nil slice leaves the key untouched; returning
// an error aborts the transaction.
type UpdateFunc func(current []byte) ([]byte, error)

// Database defines the interface for database operations
type Database interface {
	Close() error
	GetKV(ctx context.Context, bucket string, key []byte) ([]byte, error)
	PutKV(ctx context.Context, bucket string, key, value []byte) error
	UpdateKV(ctx context.Context, bucket string, key []byte, fn UpdateFunc) error
	DeleteKV(ctx context.Context, bucket string, key []byte) error
	GetAllKV(ctx context.Context, bucket string) (map[string][]byte, error)
	DeleteAllKV(ctx context.Context, bucket string) error
	GetOrCreateBucket(ctx context.Context, name string) error
}

// Repository provides a generic repository interface
type Repository[T any] interface {
	Save(ctx context.Context, key string, entity T) error
	Get(ctx context.Context, key string) (T, error)
	GetAll(ctx context.Context) (map[string]T, error)
	Delete(ctx context.Context, key string) error
	DeleteAll(ctx context.Context) error
}
