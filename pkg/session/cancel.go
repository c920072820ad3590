package session

import "sync/atomic"

// CancelToken is the cooperative cancellation primitive for a session
// lifetime. It fires exactly once and is checked before every state
// transition; in-flight fetch/connect work still runs to completion but
// its results are discarded once the token has fired.
type CancelToken struct {
	fired atomic.Bool
}

// Cancel fires the token. Idempotent.
func (t *CancelToken) Cancel() {
	t.fired.Store(true)
}

// Cancelled reports whether the token has fired.
func (t *CancelToken) Cancelled() bool {
	return t.fired.Load()
}
