package host

import "fmt"

// spaceRequest represents a unit of work to be executed on the space
// goroutine.
type spaceRequest struct {
	fn   func(*Space) any
	done chan spaceResult
}

// spaceResult holds the return value from a space operation.
type spaceResult struct {
	value any
	err   error
}

// Worker serializes all object-space access through a single
// goroutine. The script host is single-threaded; every boundary
// operation must go through the worker so that concurrent sessions
// observe operations in program order without data races.
type Worker struct {
	space    *Space
	requests chan spaceRequest
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(space *Space) *Worker {
	w := &Worker{
		space:    space,
		requests: make(chan spaceRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes space requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the space, recovering from panics.
func (w *Worker) execute(fn func(*Space) any) spaceResult {
	var result spaceResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.space)
	}()
	return result
}

// Do submits a function for execution on the space goroutine and
// blocks until it completes. Returns the result and any error
// (including panics).
func (w *Worker) Do(fn func(*Space) any) (any, error) {
	req := spaceRequest{fn: fn, done: make(chan spaceResult, 1)}
	w.requests <- req
	res := <-req.done
	return res.value, res.err
}

// Space returns the worker's object space.
func (w *Worker) Space() *Space { return w.space }

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}
