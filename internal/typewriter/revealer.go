package typewriter

import (
	"sync"
	"time"
)

// DefaultInterval is the delay between revealed runes.
const DefaultInterval = 30 * time.Millisecond

// Ticker is the tick source a Revealer reads from.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker returns a Ticker backed by time.Ticker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// RevealerOpts holds parameters for creating a Revealer.
type RevealerOpts struct {
	Interval  time.Duration      // defaults to DefaultInterval
	Emit      func(frame string) // called with every frame; must not call back into the Revealer
	NewTicker TickerFunc         // defaults to NewTimeTicker
}

// Revealer animates one target at a time. Restart replaces the running
// reveal; frames from a replaced or canceled reveal are never emitted after
// Restart or Cancel returns.
type Revealer struct {
	interval  time.Duration
	emit      func(string)
	newTicker TickerFunc

	ctl     sync.Mutex // serializes Restart and Cancel
	mu      sync.Mutex
	current string
	stop    chan struct{}
	done    chan struct{}
}

// NewRevealer creates an idle Revealer.
func NewRevealer(opts RevealerOpts) *Revealer {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.Emit == nil {
		opts.Emit = func(string) {}
	}
	return &Revealer{
		interval:  opts.Interval,
		emit:      opts.Emit,
		newTicker: opts.NewTicker,
	}
}

// Restart cancels any in-flight reveal, emits "" synchronously, then emits
// one more rune of target per tick until it is complete.
func (r *Revealer) Restart(target string) {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	r.cancel()

	stop := make(chan struct{})
	done := make(chan struct{})
	r.mu.Lock()
	r.current = ""
	r.stop = stop
	r.done = done
	r.mu.Unlock()

	r.emit("")

	seq := NewSequence(target)
	if seq.Done() {
		close(done)
		return
	}
	go r.run(seq, r.newTicker(r.interval), stop, done)
}

func (r *Revealer) run(seq *Sequence, ticker Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			select {
			case <-stop:
				return
			default:
			}
			frame, ok := seq.Next()
			if !ok {
				return
			}
			r.mu.Lock()
			r.current = frame
			r.mu.Unlock()
			r.emit(frame)
			if seq.Done() {
				return
			}
		}
	}
}

// Cancel stops the running reveal without emitting and waits for it to exit.
func (r *Revealer) Cancel() {
	r.ctl.Lock()
	defer r.ctl.Unlock()
	r.cancel()
}

func (r *Revealer) cancel() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Current returns the last emitted frame.
func (r *Revealer) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Wait blocks until the running reveal completes or is canceled.
func (r *Revealer) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}
