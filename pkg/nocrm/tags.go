package nocrm

import (
	"fmt"
	"strconv"
	"strings"
)

// Prospecting lists carry their cluster binding in tags: the first tag is the
// 32-character cluster id, the second the cluster display name, and an
// optional "P<number>" tag the position of the list in the cluster's sequence.
// Lists without an index tag are sequence index 0.

const clusterIDTagLength = 32

// ClusterIDFromTags extracts the cluster id tag, if present.
func ClusterIDFromTags(tags []string) (string, bool) {
	if len(tags) == 0 {
		return "", false
	}
	id := tags[0]
	if len(id) != clusterIDTagLength || strings.Contains(id, " ") {
		return "", false
	}
	return id, true
}

// ClusterNameFromTags extracts the cluster display name tag, if present.
func ClusterNameFromTags(tags []string) string {
	if len(tags) < 2 {
		return ""
	}
	return tags[1]
}

// SequenceIndexFromTags extracts the list's sequence index from a "P<number>"
// tag. Lists without one are treated as index 0.
func SequenceIndexFromTags(tags []string) int {
	for _, tag := range tags {
		if len(tag) < 2 || tag[0] != 'P' {
			continue
		}
		if n, err := strconv.Atoi(tag[1:]); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

// SequenceIndexTag renders the tag form of a sequence index.
func SequenceIndexTag(index int) string {
	return fmt.Sprintf("P%02d", index)
}

// ListTitle renders the display title of the list at the given sequence index.
func ListTitle(clusterName string, index int) string {
	return fmt.Sprintf("%s %02d", clusterName, index)
}

// ListTags builds the full tag set for a cluster list at the given index.
func ListTags(clusterID, clusterName string, index int) []string {
	return []string{clusterID, clusterName, SequenceIndexTag(index)}
}
