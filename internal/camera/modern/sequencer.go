package modern

// SequenceState は静止画撮影シーケンスの状態
type SequenceState int

const (
	SequencePreview SequenceState = iota
	SequenceWaitingLock
	SequenceWaitingPrecapture
	SequenceWaitingNonPrecapture
	SequencePictureTaken
)

func (s SequenceState) String() string {
	switch s {
	case SequencePreview:
		return "preview"
	case SequenceWaitingLock:
		return "waiting_lock"
	case SequenceWaitingPrecapture:
		return "waiting_precapture"
	case SequenceWaitingNonPrecapture:
		return "waiting_non_precapture"
	case SequencePictureTaken:
		return "picture_taken"
	default:
		return "unknown"
	}
}

// sequencerOps はシーケンサーがセッションに依頼するハードウェア操作
type sequencerOps interface {
	// latestPhoto は写真リーダーから最新の画像を取り出す
	latestPhoto() ([]byte, bool)
	issueStillCapture()
	issueFocusLock() error
	issuePrecapture() error
	issueFocusUnlock() error
}

// Sequencer はキャプチャ結果を受けて静止画撮影を進める
// ロックを持たないため、セッションのロック下で操作すること
type Sequencer struct {
	ops      sequencerOps
	state    SequenceState
	callback func(jpeg []byte)
}

func newSequencer(ops sequencerOps) *Sequencer {
	return &Sequencer{ops: ops, state: SequencePreview}
}

// State は現在の状態を返す
func (s *Sequencer) State() SequenceState {
	return s.state
}

// Capture は撮影を開始する。画像は次に取り出せた写真で callback へ渡される
// フォーカスロックの検証は行わず、直ちに静止画リクエストを発行する
func (s *Sequencer) Capture(callback func(jpeg []byte)) {
	s.callback = callback
	s.captureStill()
}

// CaptureAfterPrecapture は露出のプリキャプチャが収束してから撮影する
func (s *Sequencer) CaptureAfterPrecapture(callback func(jpeg []byte)) error {
	s.callback = callback
	if err := s.RunPrecapture(); err != nil {
		s.callback = nil
		return err
	}
	return nil
}

// LockFocus はAFトリガーを発行し、次の結果で静止画を撮影する
func (s *Sequencer) LockFocus() error {
	s.state = SequenceWaitingLock
	if err := s.ops.issueFocusLock(); err != nil {
		s.state = SequencePreview
		return err
	}
	return nil
}

// RunPrecapture は露出のプリキャプチャを開始する
func (s *Sequencer) RunPrecapture() error {
	s.state = SequenceWaitingPrecapture
	if err := s.ops.issuePrecapture(); err != nil {
		s.state = SequencePreview
		return err
	}
	return nil
}

// UnlockFocus はAFロックを解除してプレビューに戻る
func (s *Sequencer) UnlockFocus() error {
	err := s.ops.issueFocusUnlock()
	s.state = SequencePreview
	return err
}

// Process はキャプチャ結果（部分結果を含む）で状態を進める
// 写真を渡すべき場合はロック外で呼ぶ関数を返す
func (s *Sequencer) Process(result CaptureResult) func() {
	switch s.state {
	case SequencePreview:
		return s.Drain()
	case SequenceWaitingLock:
		s.captureStill()
	case SequenceWaitingPrecapture:
		switch result.AEState {
		case AEStateUnset, AEStatePrecapture, AEStateFlashRequired:
			s.state = SequenceWaitingNonPrecapture
		}
	case SequenceWaitingNonPrecapture:
		// 未設定の場合も撮影に進む
		if result.AEState != AEStatePrecapture {
			s.state = SequencePictureTaken
			s.captureStill()
		}
	}
	return nil
}

// Drain はプレビュー状態なら最新の写真を取り出し、待機中の callback へ渡す関数を返す
func (s *Sequencer) Drain() func() {
	if s.state != SequencePreview {
		return nil
	}
	jpeg, ok := s.ops.latestPhoto()
	if !ok {
		return nil
	}
	callback := s.callback
	s.callback = nil
	if callback == nil {
		return nil
	}
	return func() { callback(jpeg) }
}

// captureStill は静止画リクエストを発行し、プレビュー状態に戻す
func (s *Sequencer) captureStill() {
	s.ops.issueStillCapture()
	s.state = SequencePreview
}
