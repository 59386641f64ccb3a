// Package store persists credentials and owner suspensions.
//
// Error contract shared by every implementation:
//   - ErrNotFound when the requested record does not exist
//   - ErrConflict when a write would leave two pending/approved credentials
//     for the same owner and kind
//   - ErrConcurrentModification when the stored version no longer matches the
//     caller's expected version
//   - wrapped infrastructure errors otherwise
package store

import "credlife/pkg/platform/sentinel"

var (
	ErrNotFound               = sentinel.ErrNotFound
	ErrConflict               = sentinel.ErrConflict
	ErrConcurrentModification = sentinel.ErrConcurrentModification
)
