// Package testutil holds helpers shared by store and service tests.
package testutil

import (
	"errors"
	"sync"

	"credlife/pkg/platform/sentinel"
)

// RaceResult counts how the contenders of a race ended.
type RaceResult struct {
	Successes int
	Conflicts int
	NotFounds int
	// Unexpected holds every error that is not a store sentinel.
	Unexpected []error
}

// RunConcurrent starts n goroutines, releases them together, and classifies
// what fn returned. Lost version races and uniqueness violations both count
// as conflicts.
func RunConcurrent(n int, fn func(idx int) error) RaceResult {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		res   RaceResult
		start = make(chan struct{})
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := fn(i)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Successes++
			case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrConcurrentModification):
				res.Conflicts++
			case errors.Is(err, sentinel.ErrNotFound):
				res.NotFounds++
			default:
				res.Unexpected = append(res.Unexpected, err)
			}
		}()
	}
	close(start)
	wg.Wait()
	return res
}
