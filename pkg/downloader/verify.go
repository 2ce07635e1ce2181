package downloader

import (
	"os"

	"galaxydl/pkg/hashutil"
)

// md5File streams a file on disk through MD5 without loading it fully
// into memory, for the whole-file verification pass spec.md §4.4/§8
// property 1 and 3 require after an item's chunks/ranges all land.
func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return hashutil.MD5Reader(f)
}
