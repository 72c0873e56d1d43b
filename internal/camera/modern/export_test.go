package modern

import "time"

// SetAfterFunc は遅延実行の関数を差し替える
func SetAfterFunc(s *Session, after func(time.Duration, func())) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.after = after
}

// SequencerState はシーケンサーの状態を返す
func SequencerState(s *Session) SequenceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq.State()
}

var (
	MeteringRect = meteringRect
	ImageBytes   = imageBytes
)
