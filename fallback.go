package heartsync

import "sync"

// Strategy selects between the optimized and the fallback implementation of
// a logical resource.
type Strategy int

const (
	StrategyPrimary Strategy = iota
	StrategyFallback
)

func (s Strategy) String() string {
	if s == StrategyFallback {
		return "fallback"
	}
	return "primary"
}

// reduceStrategy is the pure reducer over observed error events: the first
// primary error latches Fallback for the selector's lifetime. It never
// ping-pongs back.
func reduceStrategy(cur Strategy, err error) Strategy {
	if cur == StrategyFallback {
		return StrategyFallback
	}
	if err != nil {
		return StrategyFallback
	}
	return StrategyPrimary
}

// strategySelector is the two-state selector driving smart hooks. Safe for
// concurrent use.
type strategySelector struct {
	mu  sync.Mutex
	cur Strategy
}

// Observe feeds one outcome of the primary path into the reducer and
// returns the strategy to use from now on.
func (s *strategySelector) Observe(err error) Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = reduceStrategy(s.cur, err)
	return s.cur
}

// Active returns the current strategy.
func (s *strategySelector) Active() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}
