package storage

// Backend selects how a File talks to the operating system.
type Backend int

const (
	// Buffered uses plain positional reads and writes through the OS page
	// cache. Works on every filesystem, including tmpfs.
	Buffered Backend = iota

	// DirectIO bypasses the OS page cache with aligned buffers. Not every
	// filesystem accepts O_DIRECT.
	DirectIO

	// MMap maps the file into memory and copies pages in and out of the
	// mapping. Falls back to Buffered on platforms without mmap support.
	MMap
)

func (b Backend) String() string {
	switch b {
	case DirectIO:
		return "directio"
	case MMap:
		return "mmap"
	default:
		return "buffered"
	}
}

// Options configures a File.
type Options struct {
	backend Backend
	perm    uint32
}

// DefaultOptions returns the configuration used when no option is given.
func DefaultOptions() Options {
	return Options{
		backend: Buffered,
		perm:    0600,
	}
}

// Option configures file options using the functional options pattern.
type Option func(*Options)

// WithBackend selects the I/O backend.
func WithBackend(b Backend) Option {
	return func(opts *Options) {
		opts.backend = b
	}
}

// WithDirectIO is shorthand for WithBackend(DirectIO).
//
//goland:noinspection GoUnusedExportedFunction
func WithDirectIO() Option {
	return WithBackend(DirectIO)
}

// WithMMap is shorthand for WithBackend(MMap).
//
//goland:noinspection GoUnusedExportedFunction
func WithMMap() Option {
	return WithBackend(MMap)
}

// WithPerm sets the permission bits used when a file is created.
func WithPerm(perm uint32) Option {
	return func(opts *Options) {
		opts.perm = perm
	}
}
