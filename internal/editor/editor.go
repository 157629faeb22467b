// Package editor applies catalog edits of a media file and writes the
// changed metadata back into the file itself.
package editor

import (
	"context"
	"errors"
	"strings"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/core/gps"
	"github.com/metaphotor/metaphotor/internal/catalog"
	"github.com/metaphotor/metaphotor/internal/scan"
	"github.com/metaphotor/metaphotor/pkg/logger"
)

// Store is the part of the catalog an edit touches.
type Store interface {
	GetMediaFile(ctx context.Context, id uint) (*catalog.MediaFile, error)
	GetLocation(ctx context.Context, id uint) (*catalog.Location, error)
	UpdateMediaFile(ctx context.Context, id uint, u catalog.MediaFileUpdate) error
	UpdatePath(ctx context.Context, id uint, path string) error
	CreateTags(ctx context.Context, names []string) error
}

// Detector resolves the handler of a media file.
type Detector interface {
	Detect(ctx context.Context, path string) (core.Handler, error)
}

// Result reports what an edit did besides updating the catalog row.
type Result struct {
	ID   uint   `json:"id"`
	Path string `json:"path"`
	// Moved is set when the file now lives at the requested path.
	Moved     bool   `json:"moved"`
	MoveError string `json:"move_error,omitempty"`
	// Written is set when metadata was injected into the file.
	Written    bool   `json:"written"`
	WriteError string `json:"write_error,omitempty"`
}

// Editor runs the edit flow of catalogued media files.
type Editor struct {
	store    Store
	detector Detector
	log      *logger.Logger
}

// New builds an Editor.
func New(store Store, detector Detector, log *logger.Logger) *Editor {
	if log == nil {
		log = logger.Nop()
	}
	return &Editor{store: store, detector: detector, log: log}
}

// Edit applies req to media file id. A failed move keeps the old path and a
// failed metadata injection keeps the catalog update; both are reported in
// the Result rather than as an error.
func (e *Editor) Edit(ctx context.Context, id uint, req EditRequest) (*Result, error) {
	req.Normalize()
	if err := Validate(&req); err != nil {
		return nil, err
	}

	m, err := e.store.GetMediaFile(ctx, id)
	if err != nil {
		return nil, err
	}

	var loc *catalog.Location
	if req.LocationID != nil {
		loc, err = e.store.GetLocation(ctx, *req.LocationID)
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, &ValidationError{Fields: map[string]string{"location_id": "is unknown"}}
		}
		if err != nil {
			return nil, err
		}
	}

	res := &Result{ID: id, Path: strings.TrimSpace(m.Path)}
	ctx = e.log.WithFields(ctx, map[string]any{"media_id": id, "path": res.Path})

	if !strings.EqualFold(res.Path, req.Path) {
		if err := scan.MoveFile(res.Path, req.Path); err != nil {
			e.log.WarnErr(ctx, "cannot move file", err)
			res.MoveError = err.Error()
		} else {
			res.Path, res.Moved = req.Path, true
			ctx = e.log.WithPath(ctx, res.Path)
			e.log.Info(ctx, "file moved")
		}
	}

	changed := metadataChanged(m, &req)

	size := core.FileSize(res.Path)
	if size == nil {
		return res, core.NewFileError("stat", res.Path, core.ErrUnreadableFile)
	}
	err = e.store.UpdateMediaFile(ctx, id, catalog.MediaFileUpdate{
		UserID:      req.UserID,
		Path:        res.Path,
		Size:        *size,
		Title:       req.Title,
		Description: req.Description,
		Comment:     req.Comment,
		Tags:        req.Tags,
		Coords:      req.Coords,
		LocationID:  req.LocationID,
		Year:        req.Year,
		Created:     req.Created,
	})
	if err != nil {
		return res, err
	}

	if err := e.store.CreateTags(ctx, core.SplitTags(req.Tags)); err != nil {
		e.log.WarnErr(ctx, "cannot register tags", err)
	}

	if !changed {
		e.log.Debug(ctx, "file metadata unchanged")
		return res, nil
	}

	written, err := e.inject(ctx, res.Path, &req, placeOf(loc, req.Coords))
	if err != nil {
		e.log.Error(ctx, "cannot inject metadata", err)
		res.WriteError = err.Error()
		return res, nil
	}
	res.Written = true
	if written.Path != "" && written.Path != res.Path {
		if err := e.store.UpdatePath(ctx, id, written.Path); err != nil {
			return res, err
		}
		res.Path = written.Path
	}
	return res, nil
}

// metadataChanged reports whether a field stored inside the file differs
// from the catalog row.
func metadataChanged(m *catalog.MediaFile, req *EditRequest) bool {
	return m.Description != req.Description ||
		m.Title != req.Title ||
		m.Tags != req.Tags ||
		m.Comment != req.Comment ||
		m.Coords != req.Coords ||
		m.Created != req.Created ||
		!sameID(m.LocationID, req.LocationID)
}

func sameID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// placeOf takes the place name from loc and the coordinates from the raw
// coords string, so a file keeps its own sensor position even when the
// referenced location is elsewhere. Without a location nil is returned and
// the file keeps its current location data.
func placeOf(loc *catalog.Location, coords string) *core.GPS {
	if loc == nil {
		return nil
	}
	g := &core.GPS{City: loc.City, Country: loc.Country, CountryCode: loc.Code}
	if lat, lon, err := gps.ParseCoords(coords); err == nil {
		g.Latitude, g.Longitude = lat, lon
	}
	return g
}

func (e *Editor) inject(ctx context.Context, path string, req *EditRequest, place *core.GPS) (*core.WriteResult, error) {
	h, err := e.detector.Detect(ctx, path)
	if err != nil {
		return nil, err
	}
	rec, err := h.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	upd := rec.Clone()
	upd.Title = req.Title
	upd.Description = req.Description
	upd.Comment = req.Comment
	upd.Tags = core.SplitTags(req.Tags)
	upd.Created = req.Created
	if place != nil {
		upd.GPS = *place
	}
	return h.Write(ctx, path, upd)
}
