package scan

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/metaphotor/metaphotor/core"
)

// CollectOptions decides which files a scan accepts.
type CollectOptions struct {
	AllowedExtensions []string
	// MinSize and MaxSize bound the file size in bytes; zero disables a bound.
	MinSize int64
	MaxSize int64
}

// Registry answers whether a path is already catalogued.
type Registry interface {
	IsPathRegistered(ctx context.Context, path string) (bool, error)
}

// Collector walks a folder for media files.
type Collector struct {
	opts     CollectOptions
	registry Registry
}

func NewCollector(opts CollectOptions, registry Registry) *Collector {
	return &Collector{opts: opts, registry: registry}
}

// Collect returns the accepted files under root and the declined ones.
// When counterpart is non-nil a file is declined if the path it maps to is
// already registered.
func (c *Collector) Collect(ctx context.Context, root string, counterpart func(string) string) (accepted, declined []string, err error) {
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, nil, err
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			declined = append(declined, path)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		ok, err := c.accept(ctx, path, d, counterpart)
		if err != nil {
			return err
		}
		if ok {
			accepted = append(accepted, path)
		} else {
			declined = append(declined, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("collecting media files under %s: %w", root, err)
	}
	return accepted, declined, nil
}

func (c *Collector) accept(ctx context.Context, path string, d fs.DirEntry, counterpart func(string) string) (bool, error) {
	if strings.HasPrefix(d.Name(), ".") || !core.ExtensionAllowed(path, c.opts.AllowedExtensions) {
		return false, nil
	}
	info, err := d.Info()
	if err != nil {
		return false, nil
	}
	if size := info.Size(); size < c.opts.MinSize || (c.opts.MaxSize > 0 && size > c.opts.MaxSize) {
		return false, nil
	}
	if counterpart == nil || c.registry == nil {
		return true, nil
	}

	target := counterpart(path)
	candidates := []string{target}
	if !core.IsPhoto(target) {
		if canonical := core.CanonicalVideoPath(target); canonical != target {
			candidates = append(candidates, canonical)
		}
	}
	for _, p := range candidates {
		registered, err := c.registry.IsPathRegistered(ctx, p)
		if err != nil {
			return false, err
		}
		if registered {
			return false, nil
		}
	}
	return true, nil
}
