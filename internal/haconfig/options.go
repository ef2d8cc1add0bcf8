package haconfig

import "go.uber.org/zap"

// BoundaryMode decides how far the secret store walks up from a directory.
type BoundaryMode int

const (
	// BoundaryAncestry walks while the directory is strictly inside home,
	// comparing cleaned path segments.
	BoundaryAncestry BoundaryMode = iota
	// BoundaryLexicalLength walks while the directory path is longer than the
	// home path. It ignores ancestry, so a sibling such as /config-old is
	// walked when home is /config. Kept for compatibility only.
	BoundaryLexicalLength
)

// IncludePolicy decides what happens when a nested include cannot be loaded.
type IncludePolicy int

const (
	// IncludeTolerant records a missing or unparseable nested include as an
	// empty mapping and logs a warning.
	IncludeTolerant IncludePolicy = iota
	// IncludeStrict fails the whole load.
	IncludeStrict
)

const (
	// SecretsFileName is looked up in every directory holding a loaded file.
	SecretsFileName = "secrets.yaml"
	// DefaultSuffix selects the files loaded from an included directory.
	DefaultSuffix = ".yaml"
)

type options struct {
	fs       FileSystem
	logger   *zap.Logger
	boundary BoundaryMode
	policy   IncludePolicy
	suffix   string
}

// Option configures a Loader or a SecretStore.
type Option func(*options)

// WithFileSystem overrides the filesystem, primarily for tests.
func WithFileSystem(fsys FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithLogger sets the logger used for load tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBoundary selects the secret store walk boundary.
func WithBoundary(mode BoundaryMode) Option {
	return func(o *options) {
		o.boundary = mode
	}
}

// WithIncludePolicy selects how nested include failures are handled.
func WithIncludePolicy(policy IncludePolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithSuffix sets the file suffix used when loading included directories.
func WithSuffix(suffix string) Option {
	return func(o *options) {
		o.suffix = suffix
	}
}

func newOptions(opts []Option) options {
	o := options{
		fs:     OSFileSystem{},
		suffix: DefaultSuffix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.fs == nil {
		o.fs = OSFileSystem{}
	}
	if o.suffix == "" {
		o.suffix = DefaultSuffix
	}
	return o
}
