package link

import "sync"

// StatsView is a consistent snapshot of the traffic counters.
type StatsView struct {
	TxCount        uint32 `json:"tx_count"`
	TxSuccessCount uint32 `json:"tx_success_count"`
	TxFailCount    uint32 `json:"tx_fail_count"`
	RxCount        uint32 `json:"rx_count"`
	JoinRetryCount uint32 `json:"join_retry_count"`
}

// Stats holds the node's monotonically increasing traffic counters.
// They only go back to zero through Reset (the CLEAR_STATS command).
type Stats struct {
	mu sync.Mutex
	v  StatsView
}

// Snapshot returns a copy of all counters.
func (s *Stats) Snapshot() StatsView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = StatsView{}
}

func (s *Stats) incTx() {
	s.mu.Lock()
	s.v.TxCount++
	s.mu.Unlock()
}

func (s *Stats) incTxSuccess() {
	s.mu.Lock()
	s.v.TxSuccessCount++
	s.mu.Unlock()
}

func (s *Stats) incTxFail() {
	s.mu.Lock()
	s.v.TxFailCount++
	s.mu.Unlock()
}

func (s *Stats) incRx() {
	s.mu.Lock()
	s.v.RxCount++
	s.mu.Unlock()
}

func (s *Stats) incJoinRetry() {
	s.mu.Lock()
	s.v.JoinRetryCount++
	s.mu.Unlock()
}
