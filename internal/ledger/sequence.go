package ledger

import "sync"

// DefaultSeqFloor 为交易编号下限。
const DefaultSeqFloor int64 = 80000

// Sequence 是进程内单调递增的交易编号发生器。
type Sequence struct {
	mu      sync.Mutex
	current int64
}

// NewSequence 以 floor 为起点创建编号发生器。
func NewSequence(floor int64) *Sequence {
	return &Sequence{current: floor}
}

// Sync 将当前值提升到所有观测值中的最大者，不会回退。
func (s *Sequence) Sync(observed ...int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range observed {
		if v > s.current {
			s.current = v
		}
	}
	return s.current
}

// Next 分配下一个交易编号。
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
	return s.current
}

// Current 返回最近一次分配（或同步）的编号。
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
