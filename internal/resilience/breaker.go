package resilience

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/schemetrust/internal/model"
)

// State is the circuit breaker state
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker tracks the health of one source across all schemes.
//
// Closed: every call is allowed. Consecutive failures or a high failure
// rate over the sliding window open the breaker.
// Open: calls are rejected until the open timeout elapses.
// Half-open: one trial call at a time; enough consecutive successes close
// the breaker, any failure reopens it.
type Breaker struct {
	name string
	cfg  model.BreakerConfig

	state            atomic.Int32
	consecutiveFails atomic.Int32
	halfOpenOK       atomic.Int32
	probeInFlight    atomic.Bool
	openedAt         atomic.Int64

	mu      sync.Mutex
	buckets []bucket

	now func() time.Time
}

type bucket struct {
	second  int64
	success int
	failure int
}

// NewBreaker creates a closed breaker
func NewBreaker(name string, cfg model.BreakerConfig) *Breaker {
	if cfg.ConsecutiveFailures <= 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = 3
	}

	seconds := int(cfg.Window / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	return &Breaker{
		name:    name,
		cfg:     cfg,
		buckets: make([]bucket, seconds),
		now:     time.Now,
	}
}

// Name returns the breaker name
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, moving open to half-open once the timeout has elapsed
func (b *Breaker) State() State {
	s := State(b.state.Load())
	if s == StateOpen && b.cooledDown() {
		return StateHalfOpen
	}
	return s
}

// Allow reports whether a call may proceed. In half-open state only one
// caller at a time gets through; it must report Success, Failure or Release.
func (b *Breaker) Allow() bool {
	switch State(b.state.Load()) {
	case StateClosed:
		return true
	case StateOpen:
		if !b.cooledDown() {
			return false
		}
		b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen))
	}
	return b.probeInFlight.CompareAndSwap(false, true)
}

// Success records a successful call
func (b *Breaker) Success() {
	b.record(true)
	b.consecutiveFails.Store(0)

	if State(b.state.Load()) != StateHalfOpen {
		return
	}
	b.probeInFlight.Store(false)
	if int(b.halfOpenOK.Add(1)) >= b.cfg.HalfOpenSuccesses {
		if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed)) {
			b.resetWindow()
		}
	}
}

// Failure records a failed call
func (b *Breaker) Failure() {
	b.record(false)

	switch State(b.state.Load()) {
	case StateHalfOpen:
		b.probeInFlight.Store(false)
		b.trip(int32(StateHalfOpen))
	case StateClosed:
		fails := int(b.consecutiveFails.Add(1))
		if fails >= b.cfg.ConsecutiveFailures || b.rateExceeded() {
			b.trip(int32(StateClosed))
		}
	}
}

// Release ends a call that produced no health signal (a policy rejection)
func (b *Breaker) Release() {
	if State(b.state.Load()) == StateHalfOpen {
		b.probeInFlight.Store(false)
	}
}

// trip opens the breaker. The probe slot is already free and the open
// timestamp is stored before the state flips so Allow never sees a stale one.
func (b *Breaker) trip(from int32) {
	b.openedAt.Store(b.now().UnixNano())
	b.halfOpenOK.Store(0)
	if b.state.CompareAndSwap(from, int32(StateOpen)) {
		b.consecutiveFails.Store(0)
	}
}

func (b *Breaker) cooledDown() bool {
	opened := time.Unix(0, b.openedAt.Load())
	return b.now().Sub(opened) >= b.cfg.OpenTimeout
}

func (b *Breaker) record(ok bool) {
	sec := b.now().Unix()

	b.mu.Lock()
	defer b.mu.Unlock()

	bk := &b.buckets[int(sec%int64(len(b.buckets)))]
	if bk.second != sec {
		*bk = bucket{second: sec}
	}
	if ok {
		bk.success++
	} else {
		bk.failure++
	}
}

func (b *Breaker) rateExceeded() bool {
	if b.cfg.FailureRate <= 0 {
		return false
	}

	oldest := b.now().Unix() - int64(len(b.buckets)) + 1

	b.mu.Lock()
	defer b.mu.Unlock()

	var total, failed int
	for _, bk := range b.buckets {
		if bk.second >= oldest {
			total += bk.success + bk.failure
			failed += bk.failure
		}
	}
	if total == 0 || total < b.cfg.MinSamples {
		return false
	}
	return float64(failed)/float64(total) >= b.cfg.FailureRate
}

func (b *Breaker) resetWindow() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.buckets {
		b.buckets[i] = bucket{}
	}
}

// Breakers holds one breaker per source
type Breakers struct {
	mu       sync.Mutex
	cfg      model.BreakerConfig
	breakers map[model.SourceID]*Breaker
}

// NewBreakers creates an empty breaker set
func NewBreakers(cfg model.BreakerConfig) *Breakers {
	return &Breakers{
		cfg:      cfg,
		breakers: make(map[model.SourceID]*Breaker),
	}
}

// For returns the breaker of a source, creating it on first use
func (s *Breakers) For(id model.SourceID) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[id]
	if !ok {
		b = NewBreaker(string(id), s.cfg)
		s.breakers[id] = b
	}
	return b
}

// States returns the state of every breaker created so far
func (s *Breakers) States() map[model.SourceID]State {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[model.SourceID]State, len(s.breakers))
	for id, b := range s.breakers {
		states[id] = b.State()
	}
	return states
}
