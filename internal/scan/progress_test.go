package scan

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressFileConcurrentRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.json")
	p := NewProgressFile(path)
	require.NoError(t, p.Reset(50, []string{"/x/a.txt", "/x/b.txt"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, p.Record(i%5 != 0, "/m/f.jpg"))
		}(i)
	}
	wg.Wait()

	pr, err := p.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, Progress{
		Total:    50,
		Passed:   40,
		Failed:   10,
		Declined: "/x/a.txt;/x/b.txt;" + strings.Repeat("/m/f.jpg;", 10),
	}, pr)
}

func TestProgressFileResetClearsCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.json")
	p := NewProgressFile(path)
	require.NoError(t, p.Reset(2, nil))
	require.NoError(t, p.Record(true, "a"))
	require.NoError(t, p.Reset(3, nil))

	passed, failed := p.Counts()
	assert.Zero(t, passed)
	assert.Zero(t, failed)

	pr, err := ReadProgress(path)
	require.NoError(t, err)
	assert.Equal(t, Progress{Total: 3}, pr)
}

func TestProgressFileJSONKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.json")
	p := NewProgressFile(path)
	require.NoError(t, p.Reset(1, []string{"a"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":1,"passed":0,"failed":0,"declined":"a;"}`, string(data))
}

func TestErrorLogAppends(t *testing.T) {
	l := NewErrorLog(filepath.Join(t.TempDir(), "scan_err.log"))
	require.NoError(t, l.Truncate())
	require.NoError(t, l.Append("/m/a.jpg", errors.New("boom")))
	require.NoError(t, l.Append("/m/b.jpg", errors.New("bang")))

	data, err := os.ReadFile(l.path)
	require.NoError(t, err)
	assert.Equal(t, "/m/a.jpg failed due to boom\n/m/b.jpg failed due to bang\n", string(data))
}
