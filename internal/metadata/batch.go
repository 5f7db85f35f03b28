package metadata

import (
	"context"
	"runtime"
	"sync"
)

// Lookup is the outcome of one MetadataForAll query.
type Lookup struct {
	File   string
	Result *Result
	Err    error
}

// MetadataForAll queries every file with a bounded worker pool and returns
// the lookups in input order. workers <= 0 uses GOMAXPROCS. Files not yet
// started when ctx is cancelled report ctx.Err().
func (s *Store) MetadataForAll(ctx context.Context, files []string, workers int) []Lookup {
	out := make([]Lookup, len(files))
	if len(files) == 0 {
		return out
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(files) {
		workers = len(files)
	}

	work := make(chan int, len(files))
	for i := range files {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				out[idx].File = files[idx]
				if err := ctx.Err(); err != nil {
					out[idx].Err = err
					continue
				}
				out[idx].Result, out[idx].Err = s.MetadataFor(files[idx])
			}
		}()
	}
	wg.Wait()

	return out
}
