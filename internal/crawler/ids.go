package crawler

import (
	"strconv"
	"strings"
)

// ChunkID derives the stable vector id for chunk index of url.
func ChunkID(url string, index int) string {
	safe := strings.ReplaceAll(url, "://", "_")
	safe = strings.ReplaceAll(safe, "/", "_")
	return safe + "_" + strconv.Itoa(index)
}

// ChunkIDs returns the ids for indices [from, to).
func ChunkIDs(url string, from, to int) []string {
	if from < 0 {
		from = 0
	}
	if to <= from {
		return nil
	}
	ids := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		ids = append(ids, ChunkID(url, i))
	}
	return ids
}
