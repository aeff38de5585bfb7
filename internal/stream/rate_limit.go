package stream

import (
	"errors"
	"sync"
)

var (
	errPerIPLimit = errors.New("too many concurrent streams from this address")
	errTotalLimit = errors.New("stream capacity reached")
)

// connLimiter caps concurrent SSE connections per client address and in
// total.
type connLimiter struct {
	mu       sync.Mutex
	perIP    map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newConnLimiter(maxPerIP, maxTotal int) *connLimiter {
	return &connLimiter{
		perIP:    make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

// acquire registers a connection for ip. The returned release func must be
// called exactly once when the connection ends.
func (l *connLimiter) acquire(ip string) (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.total >= l.maxTotal:
		return nil, errTotalLimit
	case l.perIP[ip] >= l.maxPerIP:
		return nil, errPerIPLimit
	}
	l.perIP[ip]++
	l.total++

	var once sync.Once
	return func() { once.Do(func() { l.release(ip) }) }, nil
}

func (l *connLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total--
	if l.perIP[ip]--; l.perIP[ip] <= 0 {
		delete(l.perIP, ip)
	}
}

// active returns the connection count for ip and overall.
func (l *connLimiter) active(ip string) (forIP, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip], l.total
}
