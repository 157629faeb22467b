package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	repo := NewRepository(conn)
	repo.now = func() time.Time { return time.Date(2021, 3, 4, 5, 6, 7, 0, time.Local) }
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func TestCreateMediaFile(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	m := &MediaFile{Path: "/media/a.jpg", Title: "t", Size: 10}
	require.NoError(t, repo.CreateMediaFile(ctx, m))
	assert.NotZero(t, m.ID)
	assert.Equal(t, "2021-03-04 05:06:07", m.Imported)

	ok, err := repo.IsPathRegistered(ctx, "/media/a.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsPathRegistered(ctx, "/media/b.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	err = repo.CreateMediaFile(ctx, &MediaFile{Path: "/media/a.jpg"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetMediaFileNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetMediaFile(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemovePublicUnder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, m := range []*MediaFile{
		{Path: "/media/2020/a.jpg"},
		{Path: "/media/b.mp4"},
		{Path: "/media/private.jpg", UserID: 7},
		{Path: "/media2/c.jpg"},
		{Path: "/elsewhere/d.jpg"},
	} {
		require.NoError(t, repo.CreateMediaFile(ctx, m))
	}

	removed, err := repo.RemovePublicUnder(ctx, "/media/")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	for path, want := range map[string]bool{
		"/media/2020/a.jpg":  false,
		"/media/b.mp4":       false,
		"/media/private.jpg": true,
		"/media2/c.jpg":      true,
		"/elsewhere/d.jpg":   true,
	} {
		ok, err := repo.IsPathRegistered(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, want, ok, path)
	}
}

func TestRemovePublicUnderEscapesWildcards(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateMediaFile(ctx, &MediaFile{Path: "/med_a/x.jpg"}))
	require.NoError(t, repo.CreateMediaFile(ctx, &MediaFile{Path: "/medXa/y.jpg"}))

	removed, err := repo.RemovePublicUnder(ctx, "/med_a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestUpdateMediaFile(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	m := &MediaFile{Path: "/media/a.jpg", Title: "old", Tags: "one two"}
	require.NoError(t, repo.CreateMediaFile(ctx, m))
	loc, err := repo.EnsureLocation(ctx, Location{City: "oslo", Country: "norway", Code: "no"})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateMediaFile(ctx, m.ID, MediaFileUpdate{
		Path:       "/media/b.jpg",
		Title:      "new",
		Tags:       "",
		Coords:     "59.9,10.7",
		LocationID: &loc.ID,
		Year:       2019,
		Created:    "2019-01-01 00:00:00",
	}))

	got, err := repo.GetMediaFile(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "/media/b.jpg", got.Path)
	assert.Equal(t, "new", got.Title)
	assert.Empty(t, got.Tags)
	assert.Equal(t, "2021-03-04 05:06:07", got.Updated)
	require.NotNil(t, got.Location)
	assert.Equal(t, "Oslo", got.Location.City)

	err = repo.UpdateMediaFile(ctx, 999, MediaFileUpdate{Path: "/x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTags(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateTags(ctx, []string{"Sea", "ab", "sea", "mountains", "averyveryverylongtag", "мир"}))
	require.NoError(t, repo.CreateTags(ctx, []string{"sea", "sunset"}))

	tags, err := repo.ListTags(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(tags))
	for _, tg := range tags {
		names = append(names, tg.Name)
	}
	assert.ElementsMatch(t, []string{"sea", "mountains", "мир", "sunset"}, names)
}

func TestEnsureLocation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	lat, lon := 53.9, 27.56
	first, err := repo.EnsureLocation(ctx, Location{City: " minsk", Country: "BELARUS", Code: "by", Latitude: &lat, Longitude: &lon})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "Minsk", first.City)
	assert.Equal(t, "Belarus", first.Country)
	assert.Equal(t, "BY", first.Code)

	second, err := repo.EnsureLocation(ctx, Location{City: "Minsk", Country: "Belarus"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.Latitude)
	assert.Equal(t, lat, *second.Latitude)

	none, err := repo.EnsureLocation(ctx, Location{Country: "Belarus"})
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = repo.FindLocation(ctx, "Gomel", "Belarus")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := repo.GetLocation(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Minsk", got.City)
}

func TestNormalizePlace(t *testing.T) {
	city, country, code := NormalizePlace("  new york ", "UNITED STATES", " us")
	assert.Equal(t, "New York", city)
	assert.Equal(t, "United States", country)
	assert.Equal(t, "US", code)
}
