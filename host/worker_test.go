package host

import (
	"sync"
	"testing"
)

func TestWorkerSerializesAccess(t *testing.T) {
	worker := NewWorker(NewSpace())
	defer worker.Stop()

	// Concurrent unsynchronized increments through the worker must not
	// lose updates; the single space goroutine is the only writer.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				worker.Do(func(sp *Space) any {
					counter++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	if counter != 1000 {
		t.Errorf("counter = %d, want 1000", counter)
	}
}

func TestWorkerRecoversPanics(t *testing.T) {
	worker := NewWorker(NewSpace())
	defer worker.Stop()

	_, err := worker.Do(func(sp *Space) any {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected error from panicking operation")
	}

	// The worker must still be alive afterwards.
	v, err := worker.Do(func(sp *Space) any { return 42 })
	if err != nil || v != 42 {
		t.Errorf("worker dead after panic: %v, %v", v, err)
	}
}
