// Package lifecycle adapts the teacher's utils/closer.go and utils/valve.go
// goroutine-coordination helpers. No other package in this module imports
// it; region close waits on its own flags and counters.
package lifecycle

import "sync"

// Closer lets one goroutine tell a set of background workers to stop and
// wait for them to acknowledge. Unchanged from the teacher's utils.Closer
// beyond renaming: it is exactly the shape region/store background loops
// need.
type Closer struct {
	waiting     sync.WaitGroup
	CloseSignal chan struct{}
}

func NewCloser() *Closer {
	return &Closer{CloseSignal: make(chan struct{})}
}

// Close signals CloseSignal and blocks until every added worker calls Done.
func (c *Closer) Close() {
	close(c.CloseSignal)
	c.waiting.Wait()
}

func (c *Closer) Done() { c.waiting.Done() }

func (c *Closer) Add(n int) { c.waiting.Add(n) }

// Valve is a bounded concurrency gate with error propagation.
type Valve struct {
	once      sync.Once
	wg        sync.WaitGroup
	ch        chan struct{}
	errCh     chan error
	finishErr error
}

func NewValve(max int) *Valve {
	return &Valve{
		ch:    make(chan struct{}, max),
		errCh: make(chan error, max),
	}
}

// Run blocks until a slot is free, or returns an error reported by another
// holder via Done.
func (v *Valve) Run() error {
	for {
		select {
		case v.ch <- struct{}{}:
			v.wg.Add(1)
			return nil
		case err := <-v.errCh:
			if err != nil {
				return err
			}
		}
	}
}

// Done releases the slot acquired by Run. A non-nil err is broadcast to
// other Run callers.
func (v *Valve) Done(err error) {
	if err != nil {
		v.errCh <- err
	}
	select {
	case <-v.ch:
	default:
		panic("lifecycle: Valve Done without matching Run")
	}
	v.wg.Done()
}

func (v *Valve) Finish() error {
	v.once.Do(func() {
		v.wg.Wait()
		close(v.ch)
		close(v.errCh)
		for err := range v.errCh {
			if err != nil {
				v.finishErr = err
				return
			}
		}
	})
	return v.finishErr
}
