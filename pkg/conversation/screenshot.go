package conversation

import "sync/atomic"

// Screenshot owns the bytes of an uploaded image for the length of a
// workflow. Every workflow exit closes it exactly once.
type Screenshot struct {
	data    []byte
	closed  atomic.Bool
	onClose func()
}

func (e *Engine) newScreenshot(data []byte) *Screenshot {
	e.open.Add(1)
	return &Screenshot{data: data, onClose: func() { e.open.Add(-1) }}
}

// Bytes returns the image, or nil once released.
func (s *Screenshot) Bytes() []byte {
	if s.closed.Load() {
		return nil
	}
	return s.data
}

// Close releases the buffer.
func (s *Screenshot) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrScreenshotReleased
	}
	s.data = nil
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// OpenScreenshots is the number of screenshots held by running workflows.
func (e *Engine) OpenScreenshots() int64 { return e.open.Load() }
