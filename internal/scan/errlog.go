package scan

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/multierr"
)

// ErrorLog is the plain-text list of per-file failures of the last scan.
type ErrorLog struct {
	path string
	mu   sync.Mutex
}

func NewErrorLog(path string) *ErrorLog {
	return &ErrorLog{path: path}
}

// Truncate empties the log before a scan.
func (l *ErrorLog) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return os.WriteFile(l.path, nil, 0o644)
}

// Append adds one failure line.
func (l *ErrorLog) Append(path string, cause error) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))

	_, err = fmt.Fprintf(f, "%s failed due to %v\n", path, cause)
	return err
}
