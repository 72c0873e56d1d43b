package camera

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// カメラ状態機械のイベント名
const (
	eventOpen           = "open"
	eventOpened         = "device_opened"
	eventStartPreview   = "start_preview"
	eventPreviewStarted = "first_frame"
	eventPreviewFailed  = "preview_failed"
	eventStopPreview    = "stop_preview"
	eventPreviewStopped = "preview_halted"
	eventRelease        = "release"
	eventClosed         = "device_closed"
)

func cameraEvents() fsm.Events {
	return fsm.Events{
		{Name: eventOpen, Src: []string{string(StateClosed)}, Dst: string(StateOpening)},
		{Name: eventOpened, Src: []string{string(StateOpening)}, Dst: string(StateOpened)},
		{Name: eventStartPreview, Src: []string{string(StateOpened), string(StatePreviewStopped)}, Dst: string(StatePreviewStarting)},
		{Name: eventPreviewStarted, Src: []string{string(StatePreviewStarting)}, Dst: string(StatePreviewStarted)},
		// 構成に失敗したプレビューは再開できるよう Opened に戻す
		{Name: eventPreviewFailed, Src: []string{string(StatePreviewStarting)}, Dst: string(StateOpened)},
		{Name: eventStopPreview, Src: []string{string(StatePreviewStarting), string(StatePreviewStarted)}, Dst: string(StatePreviewStopping)},
		{Name: eventPreviewStopped, Src: []string{string(StatePreviewStopping)}, Dst: string(StatePreviewStopped)},
		{Name: eventRelease, Src: []string{string(StateOpened), string(StatePreviewStopped)}, Dst: string(StateClosing)},
		// Closing からの通常経路に加え、切断時はどの状態からでも Closed になる
		{Name: eventClosed, Src: []string{
			string(StateClosing),
			string(StateOpening),
			string(StateOpened),
			string(StatePreviewStarting),
			string(StatePreviewStarted),
			string(StatePreviewStopping),
			string(StatePreviewStopped),
		}, Dst: string(StateClosed)},
	}
}

// transitionFunc は状態遷移が確定した直後に呼ばれる
type transitionFunc func(from, to State)

// stateMachine はカメラ状態の明示的な遷移関数
// 状態の変更と通知は fire の中で一体として行われる
type stateMachine struct {
	fsm *fsm.FSM
}

func newStateMachine(onTransition transitionFunc) *stateMachine {
	m := &stateMachine{}
	m.fsm = fsm.NewFSM(
		string(StateClosed),
		cameraEvents(),
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if onTransition != nil {
					onTransition(State(e.Src), State(e.Dst))
				}
			},
		},
	)
	return m
}

// fire はイベントを適用する。不正な遷移は ErrStatePrecondition を返す
func (m *stateMachine) fire(event string) error {
	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("%w: %w", ErrStatePrecondition, err)
	}
	return nil
}

// can はイベントが現在の状態で適用可能かを返す
func (m *stateMachine) can(event string) bool {
	return m.fsm.Can(event)
}

// current は現在の状態を返す
func (m *stateMachine) current() State {
	return State(m.fsm.Current())
}
