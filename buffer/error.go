package buffer

import "errors"

var (
	// ErrBufferExceeded is returned when every frame is pinned and no victim
	// can be chosen. Callers must release pins or use a larger pool.
	ErrBufferExceeded = errors.New("buffer exceeded: all frames are pinned")

	// ErrPageNotPinned is returned when releasing a page that has no active pin.
	ErrPageNotPinned = errors.New("page not pinned")

	// ErrPagePinned is returned when flushing or disposing a page that is
	// still pinned.
	ErrPagePinned = errors.New("page pinned")

	// ErrBadBuffer is returned by FlushFile when a frame tagged to the file is
	// invalid or is missing from the page index.
	ErrBadBuffer = errors.New("bad buffer: invalid frame tagged to file")

	// ErrInvalidFrames is returned by New for a pool without frames.
	ErrInvalidFrames = errors.New("number of frames must be positive")
)
