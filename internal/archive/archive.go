package archive

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Archiver moves a processed recording out of the watched directory and
// reports where it went.
type Archiver interface {
	Archive(ctx context.Context, path string) (string, error)
}

// Options selects and configures the archive backend.
type Options struct {
	Mode string // none | local | s3
	Dir  string // local mode destination

	Bucket    string
	Region    string
	Endpoint  string // set for MinIO-compatible stores
	AccessKey string
	SecretKey string

	Log zerolog.Logger
}

// New builds the archiver for the configured mode. Mode "none" returns a nil
// Archiver; callers treat that as archiving disabled.
func New(ctx context.Context, opts Options) (Archiver, error) {
	switch opts.Mode {
	case "", "none":
		return nil, nil
	case "local":
		return NewLocal(opts.Dir, opts.Log), nil
	case "s3":
		return NewS3(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown archive mode %q", opts.Mode)
	}
}
