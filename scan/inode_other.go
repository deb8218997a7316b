//go:build !unix

package scan

import "os"

// inodeOf has no portable equivalent outside Unix; Windows builds fall
// back to 0, meaning the cache key degrades to (size, mtime) only.
func inodeOf(info os.FileInfo) uint64 {
	return 0
}
