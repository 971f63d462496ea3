package queue

import "strings"

// queueLabel collapses namespaced kinds back to the base kind to keep metric
// cardinality bounded.
func queueLabel(kind string) string {
	if i := strings.LastIndex(kind, ":"); i >= 0 {
		return kind[i+1:]
	}
	return kind
}
