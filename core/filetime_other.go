//go:build !darwin

package core

import (
	"os"
	"time"
)

// Linux exposes no birth time through os.Stat; Windows creation times are
// unreliable after copies, so both use the modification time.
func birthTime(os.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}
