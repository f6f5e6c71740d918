package chatwire

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// presenceTracker holds ephemeral typing and online state for
// counterparts. Nothing here is durable: the whole state is rebuilt
// from inbound signals and cleared on every reconnect.
//
// Outbound typing signals are throttled per counterpart so a keystroke
// storm does not turn into a frame storm; a stale typing signal carries
// no information the previous one didn't.
type presenceTracker struct {
	mu          sync.Mutex
	typing      map[string]*time.Timer // counterpart -> TTL timer
	online      map[string]bool
	adminOnline bool

	limiters       map[string]*rate.Limiter
	typingInterval time.Duration
	typingTTL      time.Duration
}

func newPresenceTracker(typingInterval, typingTTL time.Duration) *presenceTracker {
	return &presenceTracker{
		typing:         make(map[string]*time.Timer),
		online:         make(map[string]bool),
		limiters:       make(map[string]*rate.Limiter),
		typingInterval: typingInterval,
		typingTTL:      typingTTL,
	}
}

// allowTypingSignal reports whether an outbound typing_start to the
// counterpart fits within the throttle.
func (p *presenceTracker) allowTypingSignal(counterpart string) bool {
	if p.typingInterval <= 0 {
		return true
	}

	p.mu.Lock()
	limiter, ok := p.limiters[counterpart]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(p.typingInterval), 1)
		p.limiters[counterpart] = limiter
	}
	p.mu.Unlock()

	return limiter.Allow()
}

// setTyping records an inbound typing state change. Active typing
// clears itself after the TTL unless refreshed.
func (p *presenceTracker) setTyping(userID string, isTyping bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if timer, ok := p.typing[userID]; ok {
		timer.Stop()
		delete(p.typing, userID)
	}

	if !isTyping {
		return
	}

	if p.typingTTL > 0 {
		p.typing[userID] = time.AfterFunc(p.typingTTL, func() {
			p.clearTyping(userID)
		})
	} else {
		p.typing[userID] = nil
	}
}

func (p *presenceTracker) clearTyping(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.typing, userID)
}

// isTyping reports whether the counterpart is currently typing.
func (p *presenceTracker) isTyping(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.typing[userID]
	return ok
}

// setOnline records an inbound online state change for a counterpart.
func (p *presenceTracker) setOnline(userID string, isOnline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if isOnline {
		p.online[userID] = true
	} else {
		delete(p.online, userID)
	}
}

func (p *presenceTracker) isOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *presenceTracker) setAdminOnline(isOnline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adminOnline = isOnline
}

func (p *presenceTracker) isAdminOnline() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adminOnline
}

// reset drops all ephemeral state. Called on disconnect; presence has
// no meaning across connections.
func (p *presenceTracker) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for userID, timer := range p.typing {
		if timer != nil {
			timer.Stop()
		}
		delete(p.typing, userID)
	}
	p.online = make(map[string]bool)
	p.adminOnline = false
}
