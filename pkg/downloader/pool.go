package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"galaxydl/internal/galaxyerr"
	"galaxydl/internal/logging"
	"galaxydl/internal/statedb"
	"galaxydl/pkg/cdnclient"
	"galaxydl/pkg/hashutil"
	"galaxydl/pkg/utils"
)

// Pool is the fixed-size worker pool a Downloader owns for its lifetime
// (spec.md §4.4: "the pool is owned by the downloader for its lifetime;
// there is no global pool"). Workers are task-parallel, not file-parallel
// within one item: for a single multi-chunk item, multiple workers
// cooperate on that item's chunks, each targeting a disjoint byte range.
type Pool struct {
	client      *cdnclient.Client
	maxRetries  int // fetch attempts per fetchBody call, across all CDN URLs
	maxHashRetries int // full refetch-and-reverify attempts on an MD5 mismatch
	threadCount int

	// state, when non-nil, lets a worker skip re-fetching a chunk whose
	// compressed MD5 was already verified in a prior run, and records
	// newly-verified chunks so a later run can do the same.
	state *statedb.DB

	inputQueue chan chunkTask
	workers    []*worker
	wg         *sync.WaitGroup
}

// SetStateDB attaches a resume/verification cache to the pool. Must be
// called before Enqueue; safe to leave unset, in which case every chunk
// is always re-fetched.
func (p *Pool) SetStateDB(db *statedb.DB) { p.state = db }

// NewPool starts threadCount workers immediately, following the
// teacher's NewWorker/Start lifecycle (workers begin draining InputQueue
// as soon as they're constructed).
func NewPool(client *cdnclient.Client, threadCount, queueSize, maxRetries, maxHashRetries int) *Pool {
	logging.GlobalLogger.Info("initializing downloader pool", logging.Fields{"workers": threadCount})

	inputQueue := make(chan chunkTask, queueSize)
	wg := &sync.WaitGroup{}

	p := &Pool{
		client:         client,
		maxRetries:     maxRetries,
		maxHashRetries: maxHashRetries,
		threadCount:    threadCount,
		inputQueue:     inputQueue,
		wg:             wg,
	}

	p.workers = make([]*worker, threadCount)
	for i := 0; i < threadCount; i++ {
		w := &worker{id: i, pool: p, inputQueue: inputQueue, wg: wg}
		w.start()
		p.workers[i] = w
	}
	return p
}

func (p *Pool) Stop() {
	close(p.inputQueue)
	p.wg.Wait()
	logging.GlobalLogger.Info("downloader pool stopped")
}

// Enqueue uses the teacher's non-blocking-then-fallback-to-goroutine
// submit pattern so a momentarily full queue never deadlocks the caller
// (spec.md §5 backpressure still applies at the call-site level, via a
// bounded number of outstanding Enqueue calls). task.ReplyTo must be set;
// the result is delivered there rather than to any shared output queue,
// so concurrent callers never observe each other's results.
func (p *Pool) Enqueue(task chunkTask) {
	utils.NonBlockingEnqueue(p.inputQueue, task)
}

func (w *worker) start() {
	logging.GlobalLogger.Debug("started downloader worker " + strconv.Itoa(w.id))
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for task := range w.inputQueue {
			task.ReplyTo <- w.execute(task)
		}
	}()
}

// execute runs one task to completion: fetch, verify, inflate, write.
// Transient-error retries and CDN-URL rotation within one fetch attempt
// happen inside fetchBody; execute additionally wraps fetch+verify in its
// own retry loop, re-fetching from a different CDN URL up to
// MaxHashMismatchRetries times when the body's MD5 doesn't match, per
// spec.md §4.4/§7 ("retry up to 3 times... trying a different CDN URL").
// This mirrors the teacher's download→verify→decompress→assemble staging
// but collapsed into a single worker-owned sequence instead of four
// separate pools.
func (w *worker) execute(task chunkTask) chunkResult {
	if task.CompressedMD5 != "" && w.pool.state != nil {
		if done, _ := w.pool.state.IsVerified(task.CompressedMD5); done {
			return chunkResult{Task: task, NBytes: task.ExpectedSizeCompressed}
		}
	}

	hashRetries := w.pool.maxHashRetries
	if hashRetries <= 0 {
		hashRetries = 1
	}

	var body []byte
	var err error
	for attempt := 0; attempt < hashRetries; attempt++ {
		body, err = w.fetchBody(task, attempt)
		if err != nil {
			if task.Optional404IsOK && errorsIsNotFound(err) {
				return chunkResult{Task: task, NBytes: 0}
			}
			return chunkResult{Task: task, Err: err}
		}

		if task.CompressedMD5 == "" {
			break
		}
		got := hashutil.MD5Hex(body)
		if got == task.CompressedMD5 {
			if w.pool.state != nil {
				w.pool.state.MarkVerified(statedb.ChunkRecord{CompressedMD5: task.CompressedMD5, Size: int64(len(body)), VerifiedAt: time.Now()})
			}
			err = nil
			break
		}
		err = fmt.Errorf("%w: chunk %s: got %s", galaxyerr.ErrHashMismatch, task.CompressedMD5, got)
	}
	if err != nil {
		return chunkResult{Task: task, Err: err}
	}

	out := body
	if task.Inflate {
		inflated, err := hashutil.MaybeInflate(body)
		if err != nil {
			return chunkResult{Task: task, Err: fmt.Errorf("inflate %s: %w", task.ItemPath, err)}
		}
		out = inflated
	}

	if task.SFCBuffer != nil {
		*task.SFCBuffer = out
	}

	if task.RawMode && task.RawDestPath != "" {
		if err := writeWhole(task.RawDestPath, body); err != nil {
			return chunkResult{Task: task, Err: err}
		}
	}

	if task.DestPath != "" && task.SFCBuffer == nil {
		if err := writeAt(task.DestPath, task.WriteOffset, out); err != nil {
			return chunkResult{Task: task, Err: err}
		}
	}

	return chunkResult{Task: task, NBytes: int64(len(out))}
}

func errorsIsNotFound(err error) bool {
	return err != nil && (err == galaxyerr.ErrNotFound || containsErr(err, galaxyerr.ErrNotFound))
}

func containsErr(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// fetchBody tries task.URLs in priority order, rotating to the next one
// on transient failure, up to maxRetries total attempts across all URLs
// (spec.md §4.4: "per-attempt CDN-URL rotation"). urlOffset shifts the
// starting URL so a caller retrying a hash mismatch begins its transient-
// retry rotation from a different CDN URL than the previous hash-verify
// attempt did.
func (w *worker) fetchBody(task chunkTask, urlOffset int) ([]byte, error) {
	if len(task.URLs) == 0 {
		return nil, fmt.Errorf("downloader: task for %s has no URLs", task.ItemPath)
	}

	var lastErr error
	ctx := context.Background()
	for attempt := 0; attempt < w.pool.maxRetries; attempt++ {
		url := task.URLs[(urlOffset+attempt)%len(task.URLs)]

		var data []byte
		var err error
		if task.CompressedMD5 != "" {
			data, err = w.pool.client.GetChunk(ctx, url)
		} else {
			data, err = w.pool.client.GetRange(ctx, url, task.RangeStart, task.RangeEnd)
		}

		if err == nil {
			return data, nil
		}
		if errorsIsNotFound(err) {
			return nil, err // permanent, no retry
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", galaxyerr.ErrNetworkFailed, lastErr)
}

// writeAt performs a positional write, pre-creating the destination file
// if needed. Multiple workers may call this concurrently against the
// same path as long as their [offset, offset+len) intervals are disjoint
// (spec.md §5).
func writeAt(path string, offset int64, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteAt(data, offset); err != nil {
		return err
	}
	return nil
}

func writeWhole(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// preallocate creates path (and parent dirs) and extends it to size
// bytes via a single sparse seek-and-write, matching spec.md §4.4's
// "single sparse seek-and-write of one zero byte at total_size - 1".
func preallocate(path string, size int64) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if size <= 0 {
		return nil
	}
	if _, err := f.WriteAt([]byte{0}, size-1); err != nil {
		return err
	}
	return nil
}

func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
