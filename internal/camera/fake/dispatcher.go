// Package fake はテストとシミュレーション用のインメモリなカメラデバイスを提供する
//
// ベンダーAPIと同様に、コールバックは呼び出し元とは別の単一ゴルーチンから
// 投入順に届く。Sync で投入済みのコールバックの完了を待てる
package fake

import "sync"

type dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool
	signal  chan struct{}
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for {
		select {
		case <-d.quit:
			return
		case <-d.signal:
		}
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			f := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()
			f()
		}
	}
}

func (d *dispatcher) post(f func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, f)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// sync はこれまでに投入したコールバックが全て実行されるまで待つ
func (d *dispatcher) sync() {
	marker := make(chan struct{})
	d.post(func() { close(marker) })
	select {
	case <-marker:
	case <-d.done:
	}
}

func (d *dispatcher) close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.queue = nil
		d.mu.Unlock()
		close(d.quit)
	})
	<-d.done
}
