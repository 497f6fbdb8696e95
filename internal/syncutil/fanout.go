// Package syncutil provides small concurrency helpers for fan-out work.
package syncutil

import "sync"

// FanOut runs fn once for every index in [0, n) on its own goroutine and
// waits for all of them to finish. fn must write only to its own slot of
// any shared result slice.
func FanOut(n int, fn func(i int)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			fn(i)
		}()
	}
	wg.Wait()
}
