package session

import "sync"

// streamSidCell holds the telephony streamSid. The first Set wins; the value
// never changes afterwards.
type streamSidCell struct {
	mu    sync.Mutex
	value string
	ready chan struct{}
}

func newStreamSidCell() *streamSidCell {
	return &streamSidCell{ready: make(chan struct{})}
}

// Set stores v if no value has been stored yet and reports whether it did.
func (c *streamSidCell) Set(v string) bool {
	if v == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value != "" {
		return false
	}
	c.value = v
	close(c.ready)
	return true
}

func (c *streamSidCell) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.value != ""
}

// Ready is closed once a value has been stored.
func (c *streamSidCell) Ready() <-chan struct{} {
	return c.ready
}
