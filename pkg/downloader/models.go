package downloader

import (
	"sync"

	"galaxydl/pkg/manifest"
)

// chunkTask is one unit of work a pool worker executes: fetch a byte
// range or a content-addressed chunk, optionally verify + inflate it,
// and write it at a fixed offset. Every task's WriteOffset..WriteOffset
// +len(bytes) interval is disjoint from every sibling task's, so workers
// never coordinate around the output file (spec.md §4.4, §5).
type chunkTask struct {
	// URLs is the prioritised CDN URL list to try in order on transport
	// failure (spec.md §4.1 CDN-URL prioritisation).
	URLs []string

	// RangeStart/RangeEnd are set for V1 byte-range tasks; CompressedMD5
	// is set for V2 content-addressed chunk tasks. Exactly one applies.
	RangeStart, RangeEnd   int64
	CompressedMD5          string
	ExpectedSizeCompressed int64

	// Inflate requests zlib decompression of the fetched body before
	// writing (V2 chunks; V1 ranges are never compressed).
	Inflate bool

	DestPath    string
	WriteOffset int64

	// RawMode stores the fetched bytes as-is under a content-addressed
	// store path instead of writing into an assembled file.
	RawMode     bool
	RawDestPath string

	// SFCBuffer, when non-nil, receives the inflated bytes in memory
	// instead of (or in addition to) a file write — used for V2-SFC
	// container downloads.
	SFCBuffer *[]byte

	ItemPath string // for logging/progress attribution

	// Optional404IsOK permits a 404 to count as success with zero bytes
	// (spec.md §4.4 V2-SFC raw_mode: individual member chunks may 404).
	Optional404IsOK bool

	// ReplyTo is the channel this task's result is delivered to. Each
	// DownloadItem call owns its own ReplyTo channel so concurrent callers
	// sharing one Pool never drain each other's results off a single
	// shared output queue (spec.md §4.4, §5).
	ReplyTo chan chunkResult
}

type chunkResult struct {
	Task   chunkTask
	Err    error
	NBytes int64
}

type worker struct {
	id         int
	pool       *Pool
	inputQueue chan chunkTask
	wg         *sync.WaitGroup
}

// Options configures a single DownloadItem / DownloadItems call.
type Options struct {
	Verify     bool
	RawMode    bool
	ProgressCB ProgressFunc
	Cancel     *CancelToken

	// SFCData, when set, is the already-downloaded/decompressed bytes of
	// the enclosing Small Files Container, used to materialise items
	// marked IsInSFC without any further network access.
	SFCData []byte

	FailFast bool
}

// ProgressFunc receives (bytes_done_delta, total_bytes) for each
// completed task; the caller is responsible for thread-safe aggregation
// (spec.md §4.4, §9).
type ProgressFunc func(delta, total int64)

// Result is what DownloadItems reports per item.
type Result struct {
	Item manifest.DepotItem
	Path string
	// RawPaths holds the content-addressed store paths written in raw
	// mode, when non-empty (RawMode results don't have a single Path).
	RawPaths []string
	Err      error
}
