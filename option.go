package clockdb

import (
	"clockdb/internal/base"
	"clockdb/storage"
)

// IndexOptions configures an Index.
type IndexOptions struct {
	leafCapacity int // Entries per leaf before it splits.
	nodeCapacity int // Separator keys per internal node before it splits.
	logger       Logger
	storageOpts  []storage.Option
}

func defaultIndexOptions() IndexOptions {
	return IndexOptions{
		leafCapacity: MaxLeafCapacity,
		nodeCapacity: MaxNodeCapacity,
		logger:       base.DiscardLogger{},
	}
}

// IndexOption configures index options using the functional options pattern.
type IndexOption func(*IndexOptions)

// WithLeafCapacity bounds the number of entries in a leaf. Small values
// force frequent splits and are mostly useful in tests. The capacity of an
// existing index is read from its meta page and this option is ignored.
//
//goland:noinspection GoUnusedExportedFunction
func WithLeafCapacity(n int) IndexOption {
	return func(opts *IndexOptions) {
		opts.leafCapacity = n
	}
}

// WithNodeCapacity bounds the number of separator keys in an internal node.
//
//goland:noinspection GoUnusedExportedFunction
func WithNodeCapacity(n int) IndexOption {
	return func(opts *IndexOptions) {
		opts.nodeCapacity = n
	}
}

// WithLogger sets the logger for build progress and failures.
//
//goland:noinspection GoUnusedExportedFunction
func WithLogger(logger Logger) IndexOption {
	return func(opts *IndexOptions) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithStorageOptions passes options to the index file, such as its I/O
// backend.
//
//goland:noinspection GoUnusedExportedFunction
func WithStorageOptions(opts ...storage.Option) IndexOption {
	return func(o *IndexOptions) {
		o.storageOpts = append(o.storageOpts, opts...)
	}
}
