// Package kvstore holds the per-user key-value persistence used by the data
// source catalog.
package kvstore

import "context"

// Store is a string key-value store. Get reports found=false for a missing
// key rather than an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}
