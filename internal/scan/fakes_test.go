package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/internal/catalog"
)

var testExtensions = []string{"jpg", "jpeg", "mov", "mp4"}

// fakeHandler builds records from file names. Names containing "bad" fail,
// names containing "panic" panic.
type fakeHandler struct {
	block chan struct{}
}

func (h *fakeHandler) Extract(_ context.Context, path string) (*core.MediaRecord, error) {
	if h.block != nil {
		<-h.block
	}
	base := filepath.Base(path)
	if strings.Contains(base, "panic") {
		panic("decoder exploded")
	}
	if strings.Contains(base, "bad") {
		return nil, core.NewFileError("extract", path, core.ErrUnreadableFile)
	}
	lat, lon := 59.91, 10.75
	size := int64(1)
	return &core.MediaRecord{
		Kind:    core.KindPhoto,
		Path:    path,
		Size:    &size,
		Title:   base,
		Tags:    []string{"holiday", "ab"},
		Created: "2020-01-02 03:04:05",
		Year:    2020,
		GPS:     core.GPS{City: "Oslo", Country: "Norway", CountryCode: "no", Latitude: &lat, Longitude: &lon},
	}, nil
}

func (h *fakeHandler) Write(context.Context, string, *core.MediaRecord) (*core.WriteResult, error) {
	return nil, errors.New("not implemented")
}

func (h *fakeHandler) Info() core.FormatInfo {
	return core.FormatInfo{Name: "fake", Kind: core.KindPhoto}
}

type fakeConverter struct {
	*fakeHandler
	mu      sync.Mutex
	created map[string]string
}

func (c *fakeConverter) NeedsConversion(path string) bool {
	return !core.IsPhoto(path) && !core.IsCanonicalVideo(path)
}

func (c *fakeConverter) Convert(_ context.Context, path, created string) (*core.WriteResult, error) {
	out := core.CanonicalVideoPath(path)
	if err := os.Rename(path, out); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.created == nil {
		c.created = map[string]string{}
	}
	c.created[out] = created
	return &core.WriteResult{Path: out}, nil
}

type fakeDetector struct {
	handler core.Handler
}

func (d fakeDetector) Detect(_ context.Context, path string) (core.Handler, error) {
	if !core.ExtensionAllowed(path, testExtensions) {
		return nil, core.ErrUnsupportedType
	}
	return d.handler, nil
}

func (d fakeDetector) Converter(h core.Handler) core.Converter {
	c, _ := h.(core.Converter)
	return c
}

// memStore is a concurrency-safe in-memory catalog.
type memStore struct {
	mu        sync.Mutex
	files     map[string]*catalog.MediaFile
	tags      map[string]bool
	locations map[string]*catalog.Location
	removed   []string
}

func newMemStore() *memStore {
	return &memStore{
		files:     map[string]*catalog.MediaFile{},
		tags:      map[string]bool{},
		locations: map[string]*catalog.Location{},
	}
}

func (s *memStore) IsPathRegistered(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[path]
	return ok, nil
}

func (s *memStore) RemovePublicUnder(_ context.Context, folder string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, folder)
	var n int64
	for p, m := range s.files {
		if m.UserID == catalog.PublicOwner && strings.HasPrefix(p, folder+string(os.PathSeparator)) {
			delete(s.files, p)
			n++
		}
	}
	return n, nil
}

func (s *memStore) CreateTags(_ context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.tags[n] = true
	}
	return nil
}

func (s *memStore) FindLocation(_ context.Context, city, country string) (*catalog.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loc, ok := s.locations[city+"|"+country]; ok {
		return loc, nil
	}
	return nil, catalog.ErrNotFound
}

func (s *memStore) EnsureLocation(_ context.Context, loc catalog.Location) (*catalog.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := loc.City + "|" + loc.Country
	if existing, ok := s.locations[key]; ok {
		return existing, nil
	}
	loc.ID = uint(len(s.locations) + 1)
	s.locations[key] = &loc
	return &loc, nil
}

func (s *memStore) CreateMediaFile(_ context.Context, m *catalog.MediaFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[m.Path]; ok {
		return catalog.ErrAlreadyExists
	}
	m.ID = uint(len(s.files) + 1)
	s.files[m.Path] = m
	return nil
}

func (s *memStore) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}
