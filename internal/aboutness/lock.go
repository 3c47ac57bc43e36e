package aboutness

import "sync/atomic"

// BackfillLock is a non-blocking lock guarding against overlapping runs.
type BackfillLock struct {
	state atomic.Int32 // 0 = free, 1 = held
}

// TryAcquire takes the lock if it is free.
func (l *BackfillLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release frees the lock. Only the holder may call it.
func (l *BackfillLock) Release() {
	l.state.Store(0)
}

// Held reports whether a run currently holds the lock.
func (l *BackfillLock) Held() bool {
	return l.state.Load() == 1
}
