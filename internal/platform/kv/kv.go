// Package kv provides the small key-value slot backends that hold session
// payloads: an in-memory map, a JSON file on local disk and Redis.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is the contract every slot backend satisfies. Values are opaque
// strings; callers own their serialization.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
