package unirender

import "sync"

// ReleaseDispatcher runs GPU resource release tasks off the draw path. Tasks
// run in post order on a single goroutine started by Start. Before Start, or
// after Close, tasks queue until Drain runs them on the caller.
type ReleaseDispatcher struct {
	mu      sync.Mutex
	idle    *sync.Cond
	queue   []func()
	busy    bool
	started bool
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// NewReleaseDispatcher creates a stopped dispatcher.
func NewReleaseDispatcher() *ReleaseDispatcher {
	d := &ReleaseDispatcher{wake: make(chan struct{}, 1)}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Post queues a release task. Nil tasks are ignored.
func (d *ReleaseDispatcher) Post(task func()) {
	if task == nil {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, task)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of tasks queued or running.
func (d *ReleaseDispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.queue)
	if d.busy {
		n++
	}
	return n
}

// Start launches the release goroutine. Extra calls are ignored.
func (d *ReleaseDispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	d.done = make(chan struct{})
	go d.loop()
}

func (d *ReleaseDispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 {
			if d.closed {
				d.idle.Broadcast()
				d.mu.Unlock()
				return
			}
			d.idle.Broadcast()
			d.mu.Unlock()
			<-d.wake
			d.mu.Lock()
		}
		task := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.busy = true
		d.mu.Unlock()

		task()

		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}
}

// Drain blocks until every posted task has run. Without a running goroutine
// the tasks run on the caller.
func (d *ReleaseDispatcher) Drain() {
	d.mu.Lock()
	if !d.started || d.closed {
		tasks := d.queue
		d.queue = nil
		d.mu.Unlock()
		for _, t := range tasks {
			t()
		}
		return
	}
	for len(d.queue) > 0 || d.busy {
		d.idle.Wait()
	}
	d.mu.Unlock()
}

// Close runs the remaining tasks and stops the goroutine.
func (d *ReleaseDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	started := d.started
	d.mu.Unlock()
	if started {
		select {
		case d.wake <- struct{}{}:
		default:
		}
		<-d.done
	}
	d.Drain()
}
