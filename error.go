package clockdb

import (
	"errors"

	"clockdb/buffer"
	"clockdb/internal/base"
	"clockdb/storage"
)

//goland:noinspection GoUnusedGlobalVariable
var (
	ErrNoSuchKey          = errors.New("no such key")
	ErrScanNotInitialized = errors.New("scan not initialized")
	ErrBadOpcodes         = errors.New("bad scan opcodes")
	ErrBadScanRange       = errors.New("bad scan range")
	ErrBadIndexInfo       = errors.New("index info does not match")
	ErrBadRecord          = errors.New("record too short for key offset")
	ErrInvalidCapacity    = errors.New("invalid node capacity")
	ErrIndexClosed        = errors.New("index is closed")
	ErrCorruption         = errors.New("index corruption detected")

	ErrBufferExceeded = buffer.ErrBufferExceeded
	ErrPageNotPinned  = buffer.ErrPageNotPinned
	ErrPagePinned     = buffer.ErrPagePinned
	ErrBadBuffer      = buffer.ErrBadBuffer

	ErrFileNotFound = storage.ErrFileNotFound
	ErrFileExists   = storage.ErrFileExists
	ErrInvalidPage  = storage.ErrInvalidPage

	ErrInvalidMagicNumber = base.ErrInvalidMagicNumber
	ErrInvalidVersion     = base.ErrInvalidVersion
	ErrInvalidChecksum    = base.ErrInvalidChecksum
)
