package config

import (
	"github.com/marmos91/handlefs/pkg/vfs"
	"github.com/marmos91/handlefs/pkg/vfs/local"
)

// LocalOptions converts the configuration into adapter options. m may be
// nil to disable metrics collection.
func (c *Config) LocalOptions(m vfs.Metrics) local.Options {
	return local.Options{
		Root:                c.Export.Path,
		DataCacheSize:       c.Cache.DataDescriptors,
		TraversalCacheSize:  c.Cache.TraversalDescriptors,
		DirentBufferSize:    int(c.IO.DirentBufferSize),
		XattrPrefix:         c.Export.XattrPrefix,
		MaxConcurrentCopies: c.IO.MaxConcurrentCopies,
		CopyChunkSize:       int64(c.IO.CopyChunkSize),
		CopyBandwidth:       uint64(c.IO.CopyBandwidth),
		Metrics:             m,
	}
}
