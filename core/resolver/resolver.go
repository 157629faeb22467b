// Package resolver picks the handler for a media file from its extension.
package resolver

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/core/gps"
	"github.com/metaphotor/metaphotor/core/image"
	"github.com/metaphotor/metaphotor/core/video"
	"github.com/metaphotor/metaphotor/pkg/logger"
)

// Options configures a Resolver.
type Options struct {
	// AllowedExtensions is the video family accepted besides jpg/jpeg.
	AllowedExtensions []string
	FFmpegPath        string
	FFprobePath       string
	ToolTimeout       time.Duration
	TranscodeOptions  string
	// Runner overrides process execution of the tools.
	Runner   video.Runner
	Geocoder gps.Geocoder
	// GeocodeTimeout bounds reverse lookups during photo extraction.
	GeocodeTimeout time.Duration
	Logger         *logger.Logger
}

// Resolver is the MediaTypeResolver: it maps a path to its Handler.
type Resolver struct {
	opts  Options
	log   *logger.Logger
	photo *image.Handler
	video *video.Handler
}

// New builds a Resolver and its photo/video handlers.
func New(opts Options) *Resolver {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	tools := &video.Tools{
		FFmpeg:  opts.FFmpegPath,
		FFprobe: opts.FFprobePath,
		Timeout: opts.ToolTimeout,
		Runner:  opts.Runner,
		Log:     log,
	}
	return &Resolver{
		opts:  opts,
		log:   log,
		photo: image.New(gps.NewResolver(opts.Geocoder, opts.GeocodeTimeout, log), log),
		video: video.New(tools, opts.TranscodeOptions, log),
	}
}

// Detect returns the handler for path. jpg/jpeg always resolve to the photo
// handler. Other allowed extensions resolve to the video handler when both
// tool executables exist, else core.ErrToolsMissing. Anything else is
// core.ErrUnsupportedType.
func (r *Resolver) Detect(ctx context.Context, path string) (core.Handler, error) {
	if core.IsPhoto(path) {
		return r.photo, nil
	}
	if !core.ExtensionAllowed(path, r.opts.AllowedExtensions) {
		return nil, core.NewFileError("detect", path, fmt.Errorf("%w: %q", core.ErrUnsupportedType, core.Ext(path)))
	}
	if !isFile(r.opts.FFmpegPath) || !isFile(r.opts.FFprobePath) {
		r.log.Error(r.log.WithPath(ctx, path), "cannot find ffmpeg/ffprobe executables, check settings", core.ErrToolsMissing)
		return nil, core.NewFileError("detect", path, core.ErrToolsMissing)
	}
	return r.video, nil
}

// Converter returns h as a core.Converter, or nil when h never converts.
func (r *Resolver) Converter(h core.Handler) core.Converter {
	c, _ := h.(core.Converter)
	return c
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
