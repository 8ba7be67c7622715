// Package lock serializes mutations per document. The Postgres row lock is
// the authoritative guard; a Locker keeps contending requests from piling up
// on it and bounds how long a caller waits.
package lock

import (
	"context"
	"fmt"
)

// Release frees a held lock. It is safe to call once.
type Release func()

// Locker grants exclusive access to a key for the duration of one operation.
// Obtain waits at most the locker's wait timeout, then fails with an error
// wrapping workflow.ErrBusy.
type Locker interface {
	Obtain(ctx context.Context, key string) (Release, error)
}

// DocumentKey is the lock key of a document's aggregate.
func DocumentKey(documentID string) string {
	return fmt.Sprintf("doc-validation:%s", documentID)
}
