package distill

import (
	"log/slog"
	"time"

	"github.com/spf13/afero"
)

// NowFunc defines a function that returns the current time.
type NowFunc func() time.Time

// Option defines a function that configures a Controller.
type Option func(*Controller)

// WithFs sets a custom filesystem for the controller and its cache store.
// This is primarily useful for testing with in-memory filesystems.
func WithFs(fs afero.Fs) Option {
	return func(c *Controller) {
		c.fs = fs
	}
}

// WithCacheDir sets the cache root directory. The default is ".distill".
func WithCacheDir(dir string) Option {
	return func(c *Controller) {
		c.cacheDir = dir
	}
}

// WithMaxBytes sets the cache size budget in bytes. The default is 1 GiB.
func WithMaxBytes(n int64) Option {
	return func(c *Controller) {
		c.maxBytes = n
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithNowFunc sets a custom time function for the controller.
// This is primarily useful for testing with deterministic timestamps.
func WithNowFunc(now NowFunc) Option {
	return func(c *Controller) {
		c.now = now
	}
}
