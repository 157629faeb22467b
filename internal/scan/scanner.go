// Package scan registers media folders in the catalog: a full scan of the
// media folder or an incremental scan of the watch folder, processed by a
// bounded pool of workers.
package scan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/core/gps"
	"github.com/metaphotor/metaphotor/internal/catalog"
	"github.com/metaphotor/metaphotor/pkg/logger"
	"github.com/metaphotor/metaphotor/pkg/metrics"
)

// ErrBusy means another scan is still running.
var ErrBusy = errors.New("a scan is already in progress")

// Mode selects what a scan walks.
type Mode string

const (
	// ModeFull rescans the media folder, replacing the public entries.
	ModeFull Mode = metrics.ModeFull
	// ModeIncremental moves new files from the watch folder into the media
	// folder and registers them.
	ModeIncremental Mode = metrics.ModeIncremental
)

const defaultWorkers = 2

// Options configures a Scanner.
type Options struct {
	MediaFolder  string
	WatchFolder  string
	Collect      CollectOptions
	Workers      int
	ProgressFile string
	ErrorLog     string
}

// ScannerParams carries the collaborators of a Scanner.
type ScannerParams struct {
	Options  Options
	Detector Detector
	Store    Store
	Geocoder gps.Geocoder
	Metrics  *metrics.ScanMetrics
	Logger   *logger.Logger
}

// Report summarizes a finished scan.
type Report struct {
	ScanID   string        `json:"scan_id"`
	Mode     Mode          `json:"mode"`
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Declined []string      `json:"declined"`
	Duration time.Duration `json:"duration_ns"`
}

// Scanner runs one scan at a time.
type Scanner struct {
	opts      Options
	store     Store
	collector *Collector
	ingester  *Ingester
	progress  *ProgressFile
	errLog    *ErrorLog
	metrics   *metrics.ScanMetrics
	log       *logger.Logger
	running   atomic.Bool
}

func NewScanner(p ScannerParams) *Scanner {
	log := p.Logger
	if log == nil {
		log = logger.Nop()
	}
	if p.Options.Workers <= 0 {
		p.Options.Workers = defaultWorkers
	}
	if p.Options.ProgressFile == "" {
		p.Options.ProgressFile = "scan.json"
	}
	if p.Options.ErrorLog == "" {
		p.Options.ErrorLog = "scan_err.log"
	}
	p.Options.MediaFolder = absPath(p.Options.MediaFolder)
	p.Options.WatchFolder = absPath(p.Options.WatchFolder)
	return &Scanner{
		opts:      p.Options,
		store:     p.Store,
		collector: NewCollector(p.Options.Collect, p.Store),
		ingester:  NewIngester(p.Detector, p.Store, p.Geocoder, log),
		progress:  NewProgressFile(p.Options.ProgressFile),
		errLog:    NewErrorLog(p.Options.ErrorLog),
		metrics:   p.Metrics,
		log:       log,
	}
}

// Running reports whether a scan is in progress.
func (s *Scanner) Running() bool { return s.running.Load() }

// Status returns the content of the progress file.
func (s *Scanner) Status() (Progress, error) {
	return s.progress.Snapshot()
}

// Run performs a complete scan and waits for it.
func (s *Scanner) Run(ctx context.Context, mode Mode, owner uint) (*Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.finish()

	job, err := s.prepare(ctx, mode)
	if err != nil {
		return nil, err
	}
	return s.ingestAll(ctx, job, owner), nil
}

// Start collects the files synchronously and processes them in the
// background. It returns the number of accepted files.
func (s *Scanner) Start(ctx context.Context, mode Mode, owner uint) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	job, err := s.prepare(ctx, mode)
	if err != nil {
		s.finish()
		return 0, err
	}

	go func() {
		defer s.finish()
		s.ingestAll(context.WithoutCancel(ctx), job, owner)
	}()
	return len(job.files), nil
}

func (s *Scanner) finish() {
	s.metrics.SetRunning(false)
	s.running.Store(false)
}

type job struct {
	id       string
	mode     Mode
	started  time.Time
	files    []string
	declined []string
}

// prepare collects the files of mode, writes the initial progress report
// and truncates the error log. A full scan also drops the public entries of
// the media folder.
func (s *Scanner) prepare(ctx context.Context, mode Mode) (*job, error) {
	j := &job{id: uuid.NewString(), mode: mode, started: time.Now()}
	ctx = s.log.WithFields(ctx, map[string]any{"scan_id": j.id, "mode": string(mode)})
	s.metrics.SetRunning(true)

	var (
		root        string
		counterpart func(string) string
	)
	switch mode {
	case ModeFull:
		root = s.opts.MediaFolder
	case ModeIncremental:
		if s.opts.WatchFolder == "" {
			return nil, fmt.Errorf("watch folder is not configured")
		}
		root = s.opts.WatchFolder
		counterpart = s.mediaPath
	default:
		return nil, fmt.Errorf("unknown scan mode %q", mode)
	}
	if root == "" {
		return nil, fmt.Errorf("media folder is not configured")
	}

	files, declined, err := s.collector.Collect(ctx, root, counterpart)
	if err != nil {
		return nil, err
	}
	j.files, j.declined = files, declined

	if err := s.progress.Reset(len(files), declined); err != nil {
		return nil, err
	}
	if err := s.errLog.Truncate(); err != nil {
		return nil, fmt.Errorf("truncating scan error log: %w", err)
	}
	s.metrics.ObserveDeclined(len(declined))

	if mode == ModeFull {
		removed, err := s.store.RemovePublicUnder(ctx, s.opts.MediaFolder)
		if err != nil {
			return nil, fmt.Errorf("removing previously scanned entries: %w", err)
		}
		s.log.Info(s.log.WithField(ctx, "removed", removed), "removed previously scanned public entries")
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{"total": len(files), "declined": len(declined)}), "scan collected files")
	return j, nil
}

func (s *Scanner) ingestAll(ctx context.Context, j *job, owner uint) *Report {
	ctx = s.log.WithFields(ctx, map[string]any{"scan_id": j.id, "mode": string(j.mode)})

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, path := range j.files {
		if gCtx.Err() != nil {
			break
		}
		path := path
		g.Go(func() error {
			s.scanOne(gCtx, j.mode, owner, path)
			return nil
		})
	}
	_ = g.Wait()

	passed, failed := s.progress.Counts()
	report := &Report{
		ScanID:   j.id,
		Mode:     j.mode,
		Total:    len(j.files),
		Passed:   passed,
		Failed:   failed,
		Declined: j.declined,
		Duration: time.Since(j.started),
	}
	s.metrics.ObserveScan(string(j.mode), report.Duration)
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"total":  report.Total,
		"passed": report.Passed,
		"failed": report.Failed,
	}), "scan finished")
	return report
}

// scanOne never returns an error: a failing file is counted and logged, and
// the rest of the scan continues.
func (s *Scanner) scanOne(ctx context.Context, mode Mode, owner uint, path string) {
	ctx = s.log.WithPath(ctx, path)
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, path, fmt.Errorf("panic: %v", r))
		}
	}()

	target := path
	if mode == ModeIncremental {
		target = s.mediaPath(path)
		if err := MoveFile(path, target); err != nil {
			s.fail(ctx, path, err)
			return
		}
	}

	m, err := s.ingester.Add(ctx, owner, target)
	if err != nil {
		s.fail(ctx, target, err)
		return
	}
	if err := s.progress.Record(true, m.Path); err != nil {
		s.log.WarnErr(ctx, "cannot update progress file", err)
	}
	s.metrics.ObserveFile(kindOf(m.Path), metrics.ResultPassed)
}

func (s *Scanner) fail(ctx context.Context, path string, err error) {
	s.log.Error(ctx, "media file scan failed", err)
	if logErr := s.errLog.Append(path, err); logErr != nil {
		s.log.WarnErr(ctx, "cannot write scan error log", logErr)
	}
	if recErr := s.progress.Record(false, path); recErr != nil {
		s.log.WarnErr(ctx, "cannot update progress file", recErr)
	}
	s.metrics.ObserveFile(kindOf(path), metrics.ResultFailed)
}

// mediaPath maps a file of the watch folder to its place in the media
// folder.
func (s *Scanner) mediaPath(path string) string {
	rel, err := filepath.Rel(s.opts.WatchFolder, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.Join(s.opts.MediaFolder, rel)
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func kindOf(path string) string {
	if k := core.MediaTypeFor(core.FormatFor(path)); k != "" {
		return string(k)
	}
	return "unknown"
}

var _ Store = (*catalog.Repository)(nil)
