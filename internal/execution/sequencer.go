package execution

import "sync/atomic"

// Sequencer 发放严格递增的命令编号，可被多个 goroutine 并发调用。
type Sequencer struct {
	last atomic.Uint64
}

// NewSequencer 创建从 start 开始编号的序列器，start 为 0 时按 1 处理。
func NewSequencer(start CommandID) *Sequencer {
	if start == 0 {
		start = 1
	}
	s := &Sequencer{}
	s.last.Store(uint64(start - 1))
	return s
}

// Next 返回下一个编号。
func (s *Sequencer) Next() CommandID {
	return CommandID(s.last.Add(1))
}

// Last 返回最近一次发放的编号，尚未发放时为 start-1。
func (s *Sequencer) Last() CommandID {
	return CommandID(s.last.Load())
}
