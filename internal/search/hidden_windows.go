//go:build windows

package search

import "golang.org/x/sys/windows"

// isHidden checks the FILE_ATTRIBUTE_HIDDEN bit. Entries whose attributes
// cannot be read are treated as visible; the later stat drops vanished ones.
func isHidden(_, path string) bool {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return false
	}
	return attrs&windows.FILE_ATTRIBUTE_HIDDEN != 0
}
