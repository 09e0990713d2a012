// Package limiter is the admission gate for new client connections.
package limiter

import "sync"

// Limiter tracks concurrent connections per source address and in total.
// A limit of 0 means unlimited for that dimension.
type Limiter struct {
	maxPerAddr int
	maxTotal   int

	mu     sync.Mutex
	total  int
	counts map[string]int
}

func New(maxPerAddr, maxTotal int) *Limiter {
	return &Limiter{
		maxPerAddr: maxPerAddr,
		maxTotal:   maxTotal,
		counts:     make(map[string]int),
	}
}

// TryAcquire reserves a slot for addr. It returns false without changing any
// counter when either limit is already reached.
func (l *Limiter) TryAcquire(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxTotal > 0 && l.total >= l.maxTotal {
		return false
	}
	if l.maxPerAddr > 0 && l.counts[addr] >= l.maxPerAddr {
		return false
	}
	l.counts[addr]++
	l.total++
	return true
}

// Release returns a slot taken by TryAcquire. Releasing an address that holds
// no slot is a no-op, so neither counter can go negative.
func (l *Limiter) Release(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.counts[addr]
	if !ok {
		return
	}
	if n <= 1 {
		delete(l.counts, addr)
	} else {
		l.counts[addr] = n - 1
	}
	if l.total > 0 {
		l.total--
	}
}

func (l *Limiter) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func (l *Limiter) Count(addr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[addr]
}
