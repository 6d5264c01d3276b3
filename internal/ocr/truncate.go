package ocr

import "fmt"

const truncationMarker = "\n\n[... truncated, original length %d bytes ...]"

// TruncateMarkdown caps markdown at maxBytes, appending an explicit
// evidence marker when truncation occurs (spec §4.2, invariant 11).
func TruncateMarkdown(markdown string, maxBytes int64) string {
	if int64(len(markdown)) <= maxBytes {
		return markdown
	}
	marker := fmt.Sprintf(truncationMarker, len(markdown))
	cut := maxBytes - int64(len(marker))
	if cut < 0 {
		cut = 0
	}
	return markdown[:cut] + marker
}
