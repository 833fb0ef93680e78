// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package admission

import "strings"

// matchesPath implements the path-matching rule shared by the admission
// gate and the connection-limit caps:
// - a pattern ending in "/*" matches any path whose prefix equals pattern[:-2]
// - a pattern ending in "*" matches any path with pattern[:-1] as prefix
// - otherwise, case-insensitive equality
func matchesPath(pattern, path string) bool {
	switch {
	case strings.HasSuffix(pattern, "/*"):
		return strings.HasPrefix(path, pattern[:len(pattern)-2])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(path, pattern[:len(pattern)-1])
	default:
		return strings.EqualFold(pattern, path)
	}
}
