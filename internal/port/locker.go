package port

import "context"

type UserLocker interface {
	// AcquireUserLock takes the per-user mutation lock, returns false if it
	// is already held elsewhere.
	AcquireUserLock(ctx context.Context, userID string) (bool, error)

	// ReleaseUserLock releases a lock previously acquired by this process.
	ReleaseUserLock(ctx context.Context, userID string) error
}
