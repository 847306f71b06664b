package pipeline

import (
	"fmt"
	"strings"
)

// MarkReadPolicy decides when a fetched email is marked read
type MarkReadPolicy string

const (
	// MarkReadAfterFetch marks the email read as soon as its attachments are read,
	// regardless of how the jobs end. A permanently failing job is never retried.
	MarkReadAfterFetch MarkReadPolicy = "after_fetch"
	// MarkReadAfterTerminal marks the email read once every job for it is done or failed.
	MarkReadAfterTerminal MarkReadPolicy = "after_terminal"
	// MarkReadAfterSuccess marks the email read only when every job for it is done.
	// Failed emails stay unread and are picked up by the next run.
	MarkReadAfterSuccess MarkReadPolicy = "after_success"
	// MarkReadNever leaves emails untouched; dedup prevents duplicate jobs.
	MarkReadNever MarkReadPolicy = "never"
)

// ParseMarkReadPolicy parses a policy name, defaulting to after_fetch when empty
func ParseMarkReadPolicy(s string) (MarkReadPolicy, error) {
	switch p := MarkReadPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return MarkReadAfterFetch, nil
	case MarkReadAfterFetch, MarkReadAfterTerminal, MarkReadAfterSuccess, MarkReadNever:
		return p, nil
	default:
		return "", fmt.Errorf("unknown mark read policy %q", s)
	}
}
