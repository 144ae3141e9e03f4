package ftpclient

import (
	"crypto/tls"
	"sync"
)

// Process-wide transport state. Init and Cleanup are reference counted:
// every successful Init must be matched by one Cleanup, and the state is
// released when the count drops to zero.
var global struct {
	mu           sync.Mutex
	refs         int
	sessionCache tls.ClientSessionCache
}

// Init prepares the process-wide transport state. It must be called before
// Connect. Calling it more than once is safe as long as each call is
// matched by a Cleanup.
func Init() error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.refs == 0 {
		global.sessionCache = tls.NewLRUClientSessionCache(0)
	}
	global.refs++
	return nil
}

// Cleanup releases one reference taken by Init. Extra calls are ignored.
// Clients that are already connected keep working; new connections fail
// with KindInitialization once the last reference is gone.
func Cleanup() {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.refs == 0 {
		return
	}
	global.refs--
	if global.refs == 0 {
		global.sessionCache = nil
	}
}

// sharedSessionCache returns the TLS session cache, or nil when the
// library is not initialized.
func sharedSessionCache() (tls.ClientSessionCache, bool) {
	global.mu.Lock()
	defer global.mu.Unlock()
	return global.sessionCache, global.refs > 0
}
