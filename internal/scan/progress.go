package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
)

// Progress is the content of the progress file polled while a scan runs.
// Declined is a list of paths, each followed by ';'.
type Progress struct {
	Total    int    `json:"total"`
	Passed   int    `json:"passed"`
	Failed   int    `json:"failed"`
	Declined string `json:"declined"`
}

// ProgressFile keeps the passed/failed counters of one scan and mirrors
// them into a JSON file after every processed file.
type ProgressFile struct {
	path   string
	mu     sync.Mutex
	passed atomic.Int64
	failed atomic.Int64
}

func NewProgressFile(path string) *ProgressFile {
	return &ProgressFile{path: path}
}

// Reset zeroes the counters and writes the initial report.
func (p *ProgressFile) Reset(total int, declined []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.passed.Store(0)
	p.failed.Store(0)
	return p.write(Progress{Total: total, Declined: joinDeclined(declined)})
}

// Record counts one processed file. A failed path is added to the declined
// list.
func (p *ProgressFile) Record(ok bool, path string) error {
	if ok {
		p.passed.Add(1)
	} else {
		p.failed.Add(1)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := ReadProgress(p.path)
	if err != nil {
		return err
	}
	cur.Passed = int(p.passed.Load())
	cur.Failed = int(p.failed.Load())
	if !ok {
		cur.Declined += path + ";"
	}
	return p.write(cur)
}

// Counts returns the in-memory counters.
func (p *ProgressFile) Counts() (passed, failed int) {
	return int(p.passed.Load()), int(p.failed.Load())
}

// Snapshot reads the current report.
func (p *ProgressFile) Snapshot() (Progress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ReadProgress(p.path)
}

func (p *ProgressFile) write(pr Progress) (err error) {
	data, err := json.Marshal(pr)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p.path)+".*")
	if err != nil {
		return fmt.Errorf("writing progress file: %w", err)
	}
	defer func() {
		if err != nil {
			multierr.AppendInto(&err, removeIfExists(tmp.Name()))
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		multierr.AppendInto(&err, tmp.Close())
		return fmt.Errorf("writing progress file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("writing progress file: %w", err)
	}
	if err = os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("writing progress file: %w", err)
	}
	return nil
}

// ReadProgress parses the progress file at path.
func ReadProgress(path string) (Progress, error) {
	var pr Progress
	data, err := os.ReadFile(path)
	if err != nil {
		return pr, fmt.Errorf("reading progress file: %w", err)
	}
	if err := json.Unmarshal(data, &pr); err != nil {
		return pr, fmt.Errorf("parsing progress file: %w", err)
	}
	return pr, nil
}

func joinDeclined(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString(p)
		b.WriteByte(';')
	}
	return b.String()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
