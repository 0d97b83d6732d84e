//go:build !windows

package search

import "strings"

func isHidden(name, _ string) bool {
	return strings.HasPrefix(name, ".")
}
