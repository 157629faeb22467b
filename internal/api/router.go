// Package api is the JSON HTTP surface over scanning, geocoding and editing.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/metaphotor/metaphotor/internal/catalog"
	"github.com/metaphotor/metaphotor/internal/editor"
	"github.com/metaphotor/metaphotor/internal/scan"
	"github.com/metaphotor/metaphotor/pkg/logger"
)

var errBadRequest = errors.New("bad request")

// Scanner starts background scans and reports their progress.
type Scanner interface {
	Start(ctx context.Context, mode scan.Mode, owner uint) (int, error)
	Status() (scan.Progress, error)
}

// Editor applies edits to catalogued media files.
type Editor interface {
	Edit(ctx context.Context, id uint, req editor.EditRequest) (*editor.Result, error)
}

// CityLocator resolves a city to its center coordinates.
type CityLocator interface {
	Forward(ctx context.Context, city string) (lat, lon float64, err error)
}

// TagLister lists the known catalog tags.
type TagLister interface {
	ListTags(ctx context.Context) ([]catalog.Tag, error)
}

// Deps are the collaborators the routes call into. Metrics may be nil.
type Deps struct {
	Scanner  Scanner
	Editor   Editor
	Geocoder CityLocator
	Tags     TagLister
	Metrics  http.Handler
	Logger   *logger.Logger
}

// NewRouter wires every route.
func NewRouter(d Deps) http.Handler {
	logg := d.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	r := chi.NewRouter()
	r.Use(
		recoverer(logg),
		requestID(logg),
		logging(logg),
	)

	r.Route("/api", func(r chi.Router) {
		r.Post("/scan", startScan(d.Scanner, scan.ModeFull, logg))
		r.Post("/scan/increment", startScan(d.Scanner, scan.ModeIncremental, logg))
		r.Get("/scan/status", scanStatus(d.Scanner, logg))
		r.Get("/geo/coords", cityCoords(d.Geocoder, logg))
		r.Post("/mediafiles/{id}", editMediaFile(d.Editor, logg))
		r.Get("/tags", listTags(d.Tags, logg))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	return r
}

func startScan(s Scanner, mode scan.Mode, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := ownerParam(r)
		if err != nil {
			writeError(r.Context(), logg, w, err)
			return
		}
		total, err := s.Start(r.Context(), mode, owner)
		if err != nil {
			writeError(r.Context(), logg, w, err)
			return
		}
		writeSuccess(w, map[string]int{"total": total})
	}
}

func ownerParam(r *http.Request) (uint, error) {
	raw := r.URL.Query().Get("user")
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: user must be a numeric id", errBadRequest)
	}
	return uint(id), nil
}

func scanStatus(s Scanner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pr, err := s.Status()
		if err != nil {
			writeError(r.Context(), logg, w, err)
			return
		}
		writeSuccess(w, pr)
	}
}

func cityCoords(g CityLocator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		city := strings.TrimSpace(r.URL.Query().Get("city"))
		if city == "" {
			writeError(r.Context(), logg, w, fmt.Errorf("%w: city is required", errBadRequest))
			return
		}
		lat, lon, err := g.Forward(r.Context(), city)
		if err != nil {
			writeError(r.Context(), logg, w, err)
			return
		}
		writeSuccess(w, map[string]float64{"latitude": lat, "longitude": lon})
	}
}

func listTags(l TagLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := l.ListTags(r.Context())
		if err != nil {
			writeError(r.Context(), logg, w, err)
			return
		}
		names := make([]string, 0, len(tags))
		for _, t := range tags {
			names = append(names, t.Name)
		}
		writeSuccess(w, map[string][]string{"tags": names})
	}
}

func editMediaFile(e Editor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
		if err != nil {
			writeError(r.Context(), logg, w, fmt.Errorf("%w: id must be numeric", errBadRequest))
			return
		}
		var req editor.EditRequest
		if err := decodeJSONBody(r, &req); err != nil {
			writeError(r.Context(), logg, w, err)
			return
		}
		res, err := e.Edit(r.Context(), uint(id), req)
		if err != nil {
			writeError(r.Context(), logg, w, err)
			return
		}
		writeSuccess(w, res)
	}
}

func decodeJSONBody(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return nil
}
