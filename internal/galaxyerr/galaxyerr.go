// Package galaxyerr defines the error taxonomy from spec.md §7 as sentinel
// errors wrappable with fmt.Errorf("...: %w", ...), so callers can use
// errors.Is to branch on kind without string matching.
package galaxyerr

import "errors"

var (
	// ErrAuthExpired signals a 401 that survived a token refresh + retry.
	ErrAuthExpired = errors.New("auth expired")

	// ErrNotFound signals a 404 or a delisted manifest. Non-fatal in
	// resolve-latest fallback, fatal to a specific download_item.
	ErrNotFound = errors.New("not found")

	// ErrTransient signals a connection reset, 5xx, 408, 429, or a
	// truncated body. Retried internally; surfaces as ErrNetworkFailed
	// once the retry budget is exhausted.
	ErrTransient = errors.New("transient network error")

	// ErrNetworkFailed is what ErrTransient becomes after the retry
	// budget is exhausted.
	ErrNetworkFailed = errors.New("network failed after retries")

	// ErrHashMismatch signals a downloaded body whose MD5 doesn't match
	// the expected content address.
	ErrHashMismatch = errors.New("hash mismatch")

	// ErrUnsupported signals a patch algorithm other than xdelta3, or an
	// unknown RGOG version/type.
	ErrUnsupported = errors.New("unsupported")

	// ErrInvalidArchive signals a malformed RGOG container: bad magic,
	// an out-of-bounds section offset, or a declared/actual size mismatch.
	ErrInvalidArchive = errors.New("invalid archive")

	// ErrCancelled signals a tripped cancellation token. Callers can
	// distinguish a deliberate abort from a failure.
	ErrCancelled = errors.New("cancelled")
)
