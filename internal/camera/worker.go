package camera

import (
	"sync"
)

// worker は全てのハードウェア操作と状態変更を直列化する単一ゴルーチン
//
// タスク（公開メソッドからの操作）とイベント（ハードウェア由来の通知）の
// 二つのキューを持つ。イベントはタスクより先に処理される。
// await 中もイベントは処理され続けるため、ハードウェアの完了通知を
// 同じゴルーチン上で適用しつつタスクの完了を待てる
type worker struct {
	tasks chan func()

	mu      sync.Mutex
	pending []func()
	stopped bool
	signal  chan struct{}

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// newWorker はワーカーを作成して起動する
func newWorker() *worker {
	w := &worker{
		tasks:  make(chan func(), 32),
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer close(w.done)

	for {
		select {
		case <-w.quit:
			return
		case <-w.signal:
			w.drain()
		case task := <-w.tasks:
			w.drain()
			task()
			w.drain()
		}
	}
}

// drain は溜まっているイベントを全て処理する（ワーカー上でのみ呼ぶ）
func (w *worker) drain() {
	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.mu.Unlock()
			return
		}
		ev := w.pending[0]
		w.pending[0] = nil
		w.pending = w.pending[1:]
		w.mu.Unlock()

		ev()
	}
}

// emit はイベントをキューに積む。ブロックしない
// 停止後は false を返し、イベントは捨てられる
func (w *worker) emit(ev func()) bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return false
	}
	w.pending = append(w.pending, ev)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
	return true
}

// post はタスクを非同期に投入する
func (w *worker) post(task func()) bool {
	select {
	case <-w.quit:
		return false
	default:
	}

	select {
	case w.tasks <- task:
		return true
	case <-w.quit:
		return false
	}
}

// run はタスクを投入して実行完了まで待つ
// ワーカーが停止してタスクが実行されなかった場合は ErrCanceled を返す
func (w *worker) run(task func()) error {
	finished := make(chan struct{})
	if !w.post(func() {
		defer close(finished)
		task()
	}) {
		return ErrCanceled
	}

	select {
	case <-finished:
		return nil
	case <-w.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrCanceled
		}
	}
}

// await は c が完了するまでイベントを処理しながら待つ（ワーカー上でのみ呼ぶ）
func (w *worker) await(c *Completion) error {
	for {
		w.drain()
		if c.Finished() {
			return c.Err()
		}

		select {
		case <-c.Done():
			return c.Err()
		case <-w.signal:
		case <-w.quit:
			c.Cancel()
			return c.Err()
		}
	}
}

// stop はワーカーを停止し、終了を待つ（ワーカー上から呼んではならない）
func (w *worker) stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.pending = nil
		w.mu.Unlock()
		close(w.quit)
	})
	<-w.done
}
