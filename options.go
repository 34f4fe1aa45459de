package photovec

import (
	"log/slog"

	"github.com/lensmark/photovec/ann"
	"github.com/lensmark/photovec/codec"
	"github.com/lensmark/photovec/corpus"
)

type options struct {
	codec            codec.Codec
	logger           *Logger
	metricsCollector MetricsCollector
	corpusOptFns     []func(*corpus.Options)
	factories        map[ann.Kind]ann.Factory
}

// Option configures Manager construction.
type Option func(*options)

// WithCodec configures the codec used for the paths record and sidecar
// metadata. If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithLogger configures structured logging for operations. Pass nil to
// disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithCorpusOptions forwards options to the underlying corpus store, for
// example to tune the mtime epsilon or default embedding batch size.
func WithCorpusOptions(optFns ...func(*corpus.Options)) Option {
	return func(o *options) {
		o.corpusOptFns = append(o.corpusOptFns, optFns...)
	}
}

// WithBackendFactory overrides how the backend for kind is constructed,
// replacing the registry factory. Use it to pass build parameters:
//
//	photovec.WithBackendFactory(ann.KindHNSW, func(blobs blobstore.Store, c codec.Codec) ann.Backend {
//		return hnsw.New(blobs, c, func(o *hnsw.Options) { o.M = 32 })
//	})
func WithBackendFactory(kind ann.Kind, factory ann.Factory) Option {
	return func(o *options) {
		if o.factories == nil {
			o.factories = make(map[ann.Kind]ann.Factory)
		}
		o.factories[kind] = factory
	}
}
