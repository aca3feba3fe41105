package util

import "github.com/google/uuid"

// NewID returns a random UUID string used to correlate log lines of one run.
func NewID() string {
	return uuid.NewString()
}
