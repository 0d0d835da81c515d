package conversation

import "errors"

var (
	// ErrScreenshotReleased is returned when a screenshot is closed twice.
	ErrScreenshotReleased = errors.New("screenshot already released")
	// ErrBadChoice is returned for callback data that is not a known Choice.
	ErrBadChoice = errors.New("malformed choice")
)
