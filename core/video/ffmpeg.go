package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"go.uber.org/multierr"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/pkg/logger"
)

// DefaultTimeout bounds a single ffprobe/ffmpeg invocation.
const DefaultTimeout = 10 * time.Minute

// StreamCopyOptions re-muxes without re-encoding: a metadata-only change.
var StreamCopyOptions = []string{"-vcodec", "copy", "-acodec", "copy"}

// Runner executes an external tool.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs tools as child processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%w: %s: %v", core.ErrExternalTool, filepath.Base(name), ctxErr)
	}
	if err != nil {
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%w: %s: %v: %s", core.ErrExternalTool, filepath.Base(name), err, lastLine(stderr.String()))
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Tools locates the probe and mux executables.
type Tools struct {
	FFmpeg  string
	FFprobe string
	Timeout time.Duration
	Runner  Runner
	Log     *logger.Logger
}

func (t *Tools) runner() Runner {
	if t.Runner == nil {
		return ExecRunner{}
	}
	return t.Runner
}

func (t *Tools) logger() *logger.Logger {
	if t.Log == nil {
		return logger.Nop()
	}
	return t.Log
}

func (t *Tools) run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.runner().Run(ctx, name, args...)
}

// ─── Probe ───────────────────────────────────────────────────────────────────

type ffprobeOutput struct {
	Format ffprobeFormat `json:"format"`
}

type ffprobeFormat struct {
	Filename   string            `json:"filename"`
	Duration   string            `json:"duration"`
	FormatName string            `json:"format_name"`
	Tags       map[string]string `json:"tags"`
}

// Container is the read-only view of a video's container tags.
type Container struct {
	Duration   string
	FormatName string
	// Tags holds the format-level tags with lowercase keys and trimmed values.
	Tags map[string]string
}

// Tag returns the trimmed value of key, or "".
func (c *Container) Tag(key string) string {
	return c.Tags[strings.ToLower(key)]
}

// Probe reads the container tags of path with ffprobe.
func (t *Tools) Probe(ctx context.Context, path string) (*Container, error) {
	stdout, _, err := t.run(ctx, t.FFprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_private_data",
		"-i", path,
	)
	if err != nil {
		return nil, err
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(stdout, &probe); err != nil {
		return nil, fmt.Errorf("%w: failed to parse ffprobe output: %v", core.ErrExternalTool, err)
	}
	c := &Container{
		Duration:   strings.TrimSpace(probe.Format.Duration),
		FormatName: probe.Format.FormatName,
		Tags:       make(map[string]string, len(probe.Format.Tags)),
	}
	for key, value := range probe.Format.Tags {
		c.Tags[strings.ToLower(key)] = strings.TrimSpace(value)
	}
	return c, nil
}

// ─── Mux ─────────────────────────────────────────────────────────────────────

// Tag is a container tag to stamp during a mux. Order is kept on the command
// line.
type Tag struct {
	Key   string
	Value string
}

// Mux writes input with tags into the canonical container using codec
// options. The source is never edited in place: ffmpeg reads a uniquely
// named temporary copy and writes a staging file that is renamed into place
// on success. The temporary copy is always removed; the original is removed
// only when the output path differs. A canonical file with stream-copy
// options and tags that already hold the requested values is left alone
// without running ffmpeg.
func (t *Tools) Mux(ctx context.Context, input string, tags []Tag, options []string) (res *core.WriteResult, err error) {
	log := t.logger()
	ctx = log.WithPath(ctx, input)

	if _, statErr := os.Stat(input); statErr != nil {
		return nil, core.NewFileError("mux", input, fmt.Errorf("%w: %v", core.ErrUnreadableFile, statErr))
	}
	if t.unchanged(ctx, input, tags, options) {
		log.Debug(ctx, "mux skipped: already canonical with identical tags")
		return &core.WriteResult{Path: input}, nil
	}

	out := core.CanonicalVideoPath(input)
	if out != input {
		if _, statErr := os.Stat(out); statErr == nil {
			return nil, core.NewFileError("mux", input, fmt.Errorf("%s already exists", out))
		}
	}

	tmp, err := tempCopy(input)
	if err != nil {
		return nil, core.NewFileError("mux", input, fmt.Errorf("cannot create temporary copy: %w", err))
	}
	defer func() {
		if rmErr := removeIfExists(tmp); rmErr != nil {
			if err != nil {
				err = multierr.Append(err, rmErr)
			} else {
				log.WarnErr(ctx, "cannot remove temporary copy", rmErr)
			}
		}
	}()

	staging, err := stagingFile(out)
	if err != nil {
		return nil, core.NewFileError("mux", input, err)
	}

	args := []string{"-y", "-i", tmp}
	for _, tg := range tags {
		args = append(args, "-metadata", tg.Key+"="+tg.Value)
	}
	args = append(args, options...)
	args = append(args, staging)

	log.Info(ctx, "running ffmpeg: "+filepath.Base(t.FFmpeg)+" "+strings.Join(args, " "))
	stdout, stderr, err := t.run(ctx, t.FFmpeg, args...)
	if err != nil {
		multierr.AppendInto(&err, removeIfExists(staging))
		return nil, core.NewFileError("mux", input, err)
	}
	if err := os.Rename(staging, out); err != nil {
		multierr.AppendInto(&err, removeIfExists(staging))
		return nil, core.NewFileError("mux", input, err)
	}

	if out != input {
		if rmErr := os.Remove(input); rmErr != nil {
			log.WarnErr(ctx, "cannot remove source file", rmErr)
		} else {
			log.Info(ctx, "removed source file")
		}
	}
	return &core.WriteResult{
		Path:   out,
		Output: strings.TrimSpace(string(stdout) + "\n" + string(stderr)),
	}, nil
}

// unchanged reports whether muxing input would be a no-op.
func (t *Tools) unchanged(ctx context.Context, input string, tags []Tag, options []string) bool {
	if !core.IsCanonicalVideo(input) || !isMP4Container(input) || !metadataOnly(options) {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	c, err := t.Probe(ctx, input)
	if err != nil {
		return false
	}
	for _, tg := range tags {
		if c.Tag(tg.Key) != strings.TrimSpace(tg.Value) {
			return false
		}
	}
	return true
}

func metadataOnly(options []string) bool {
	if len(options) == 0 {
		return true
	}
	if len(options) != len(StreamCopyOptions) {
		return false
	}
	for i := range options {
		if options[i] != StreamCopyOptions[i] {
			return false
		}
	}
	return true
}

// isMP4Container sniffs the ftyp box.
func isMP4Container(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	format, _, err := tag.Identify(f)
	return err == nil && format == tag.MP4
}

func stagingFile(out string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(out), "."+strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))+".*"+core.CanonicalVideoExt)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", multierr.Append(err, os.Remove(name))
	}
	return name, nil
}

// tempCopy copies src to a new uniquely named file in the same directory and
// returns its name. Nothing is left behind on failure.
func tempCopy(src string) (name string, err error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(src), "."+filepath.Base(src)+".*.tmp")
	if err != nil {
		return "", err
	}
	defer func() {
		multierr.AppendInvoke(&err, multierr.Close(out))
		if err != nil {
			multierr.AppendInto(&err, removeIfExists(out.Name()))
			name = ""
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return "", err
	}
	return out.Name(), nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
