package client

import "sync"

// Bridge is the handle to the host client shell. It holds the signed
// handshake payload the shell hands to the embedded page.
type Bridge struct {
	mu          sync.RWMutex
	initialized bool
	initData    string
}

func NewBridge() *Bridge {
	return &Bridge{}
}

// Init records the payload supplied by the host shell. An empty payload still
// marks the bridge initialized; it means the shell has nothing to offer.
func (b *Bridge) Init(initData string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	b.initData = initData
}

func (b *Bridge) Initialized() bool {
	if b == nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

// InitData returns the handshake payload. ok is false before Init or when the
// shell supplied none.
func (b *Bridge) InitData() (payload string, ok bool) {
	if b == nil {
		return "", false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized || b.initData == "" {
		return "", false
	}
	return b.initData, true
}
