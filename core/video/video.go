// Package video handles metadata of video files through ffprobe and ffmpeg.
//
// The container tag vocabulary has no fields for tag lists, locations or a
// free-form creation date, so five standard keys are repurposed. Files
// written earlier depend on this mapping; changing it is a breaking format
// change.
//
//	title        title
//	description  description
//	comment      comment
//	tags         grouping (space separated)
//	gps          album (packed descriptor)
//	created      copyright ("YYYY-MM-DD HH:MM:SS", or the bare year when
//	             the record has no timestamp)
package video

import (
	"context"
	"strconv"
	"strings"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/core/gps"
	"github.com/metaphotor/metaphotor/pkg/logger"
)

// Container tag keys.
const (
	KeyTitle       = "title"
	KeyDescription = "description"
	KeyComment     = "comment"
	KeyGrouping    = "grouping"
	KeyAlbum       = "album"
	KeyCopyright   = "copyright"
)

// DefaultTranscodeOptions converts any supported container into H.264/AAC MP4.
const DefaultTranscodeOptions = "-vcodec h264 -acodec aac -strict -2 -b:a 384k"

// ──────────────────────────────────────────────────────────────────────────────
// Handler
// ──────────────────────────────────────────────────────────────────────────────

// Handler implements core.Handler and core.Converter for video files.
type Handler struct {
	tools     *Tools
	transcode []string
	log       *logger.Logger
}

// New returns a Handler using tools. transcodeOptions are the ffmpeg codec
// arguments used when converting into the canonical container.
func New(tools *Tools, transcodeOptions string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	if tools.Log == nil {
		tools.Log = log
	}
	if strings.TrimSpace(transcodeOptions) == "" {
		transcodeOptions = DefaultTranscodeOptions
	}
	return &Handler{tools: tools, transcode: strings.Fields(transcodeOptions), log: log}
}

func (h *Handler) Info() core.FormatInfo {
	return core.FormatInfo{
		Name:       "Video",
		Kind:       core.KindVideo,
		Extensions: []string{".mp4", ".mov", ".mpg", ".mpeg", ".3gp", ".avi"},
		MIMETypes:  []string{"video/mp4", "video/quicktime", "video/mpeg", "video/3gpp", "video/x-msvideo"},
		Container:  "container tags",
		EditableFields: []string{
			KeyTitle, KeyDescription, KeyComment, KeyGrouping, KeyAlbum, KeyCopyright,
		},
		Notes: "Every write produces a new MP4 file; the returned path is authoritative.",
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Extract
// ──────────────────────────────────────────────────────────────────────────────

// Extract probes path and maps its container tags into a record.
func (h *Handler) Extract(ctx context.Context, path string) (*core.MediaRecord, error) {
	ctx = h.log.WithPath(ctx, path)
	c, err := h.tools.Probe(ctx, path)
	if err != nil {
		return nil, core.NewFileError("probe", path, err)
	}

	rec := &core.MediaRecord{
		Kind:        core.KindVideo,
		Path:        path,
		Size:        core.FileSize(path),
		Duration:    parseDuration(c.Duration),
		Title:       c.Tag(KeyTitle),
		Description: c.Tag(KeyDescription),
		Comment:     c.Tag(KeyComment),
		Tags:        core.SplitTags(c.Tag(KeyGrouping)),
	}
	if copyright := c.Tag(KeyCopyright); isYear(copyright) {
		rec.Year, _ = strconv.Atoi(copyright)
	} else {
		rec.Created = h.created(ctx, path, copyright)
		rec.Year = core.FileYear(path, rec.Created)
	}

	if album := c.Tag(KeyAlbum); album != "" {
		g, err := gps.Unpack(album)
		if err != nil {
			h.log.WarnErr(ctx, "failed to parse gps info stored in album tag", err)
		} else {
			rec.GPS = g
		}
	}
	return rec, nil
}

func parseDuration(s string) float64 {
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d < 0 {
		return -1
	}
	return d
}

// isYear matches the bare year RecordTags writes for a record without a
// timestamp. Such a file keeps an empty created and takes its year from the
// tag.
func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	y, err := strconv.Atoi(s)
	return err == nil && y > 0
}

// created returns the copyright tag when it holds a timestamp, else the file
// time.
func (h *Handler) created(ctx context.Context, path, copyright string) string {
	if core.ValidCreated(copyright) {
		return copyright
	}
	if copyright != "" {
		h.log.Warn(ctx, "copyright tag is not a timestamp: "+copyright)
	}
	t, err := core.FileTime(path)
	if err != nil {
		h.log.WarnErr(ctx, "no file time", err)
		return ""
	}
	return core.FormatCreated(t)
}

// ──────────────────────────────────────────────────────────────────────────────
// Write
// ──────────────────────────────────────────────────────────────────────────────

// RecordTags packs rec into the repurposed container keys.
func RecordTags(rec *core.MediaRecord) []Tag {
	copyright := rec.Created
	if copyright == "" {
		copyright = rec.YearString()
	}
	return []Tag{
		{KeyTitle, rec.Title},
		{KeyDescription, rec.Description},
		{KeyComment, rec.Comment},
		{KeyGrouping, strings.Join(core.FilterTags(rec.Tags), " ")},
		{KeyAlbum, gps.Pack(rec.GPS)},
		{KeyCopyright, copyright},
	}
}

// Write re-muxes path with stream copy and the record's tags. The result
// path replaces path for the caller.
func (h *Handler) Write(ctx context.Context, path string, rec *core.MediaRecord) (*core.WriteResult, error) {
	return h.tools.Mux(ctx, path, RecordTags(rec), StreamCopyOptions)
}

// ──────────────────────────────────────────────────────────────────────────────
// Convert
// ──────────────────────────────────────────────────────────────────────────────

// NeedsConversion reports whether path is outside the canonical container.
func (h *Handler) NeedsConversion(path string) bool {
	return !core.IsCanonicalVideo(path)
}

// Convert transcodes path into the canonical container, stamping created
// into the copyright tag. Canonical files are returned unchanged.
func (h *Handler) Convert(ctx context.Context, path, created string) (*core.WriteResult, error) {
	if !h.NeedsConversion(path) {
		return &core.WriteResult{Path: path}, nil
	}
	var tags []Tag
	if created != "" {
		tags = append(tags, Tag{KeyCopyright, created})
	}
	return h.tools.Mux(ctx, path, tags, h.transcode)
}
