package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// JobCursor points at the last job of a page by its position in insertion
// order. The id guards against a cursor made for a different store.
type JobCursor struct {
	Position int
	JobID    string
}

func DecodeJobCursor(cursorStr string) (*JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	position, jobID, ok := strings.Cut(string(decoded), "|")
	if !ok || jobID == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	pos, err := strconv.Atoi(position)
	if err != nil || pos < 0 {
		return nil, fmt.Errorf("invalid position in cursor: %q", position)
	}

	return &JobCursor{Position: pos, JobID: jobID}, nil
}

func EncodeJobCursor(cursor *JobCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.Position, cursor.JobID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
