package http

import (
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"loadcell/internal/config"
	apierrors "loadcell/internal/errors"
	"loadcell/internal/exporter"
	"loadcell/pkg/contracts/domain"
)

// SeriesPoint is one output row as served to the plotter. Value is nil when missing.
type SeriesPoint struct {
	Timestamp time.Time `json:"t"`
	Value     *float64  `json:"v"`
	RawText   string    `json:"raw,omitempty"`
	Mask      string    `json:"mask,omitempty"`
	Anomaly   string    `json:"anomaly,omitempty"`
	Quality   string    `json:"quality"`
}

// SeriesResponse carries a processed file, or a window of it
type SeriesResponse struct {
	File    string        `json:"file"`
	Count   int           `json:"count"`
	Missing int           `json:"missing"`
	Points  []SeriesPoint `json:"points"`
}

// FileInfo describes a processed file available for plotting
type FileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// SeriesHandler serves processed files from the data directory
type SeriesHandler struct {
	dataDir string
	logger  *slog.Logger
}

// NewSeriesHandler creates a new series handler
func NewSeriesHandler(dataDir string, logger *slog.Logger) *SeriesHandler {
	return &SeriesHandler{
		dataDir: dataDir,
		logger:  logger.With(slog.String("component", "series_handler")),
	}
}

// Routes returns the series routes
func (h *SeriesHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/files", h.ListFiles)
	r.Get("/series", h.GetSeries)
	return r
}

// ListFiles handles GET /api/v1/files
func (h *SeriesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	matches, err := filepath.Glob(filepath.Join(h.dataDir, "*"+config.ProcessedSuffix+".csv"))
	if err != nil {
		h.renderError(w, r, apierrors.NewIOError("cannot list data directory", err))
		return
	}

	files := make([]FileInfo, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: filepath.Base(match), Size: info.Size(), Modified: info.ModTime().UTC()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	render.JSON(w, r, files)
}

// GetSeries handles GET /api/v1/series?file=NAME&from=RFC3339&to=RFC3339
func (h *SeriesHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("file")
	path, apiErr := h.resolve(name)
	if apiErr != nil {
		render.Render(w, r, apiErr)
		return
	}

	from, err := parseBound(r.URL.Query().Get("from"))
	if err != nil {
		render.Render(w, r, apierrors.InvalidParameter("from", err))
		return
	}
	to, err := parseBound(r.URL.Query().Get("to"))
	if err != nil {
		render.Render(w, r, apierrors.InvalidParameter("to", err))
		return
	}

	records, err := exporter.ReadRecordsFile(path)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	resp := SeriesResponse{File: name, Points: make([]SeriesPoint, 0, len(records))}
	for _, record := range records {
		if !from.IsZero() && record.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && record.Timestamp.After(to) {
			continue
		}
		resp.Points = append(resp.Points, toPoint(record))
		if record.Missing() {
			resp.Missing++
		}
	}
	resp.Count = len(resp.Points)

	h.logger.DebugContext(r.Context(), "Series served",
		slog.String("file", name),
		slog.Int("points", resp.Count))
	render.JSON(w, r, resp)
}

// resolve maps a file name onto the data directory. Only bare names are accepted.
func (h *SeriesHandler) resolve(name string) (string, *apierrors.APIError) {
	if name == "" {
		return "", apierrors.New(http.StatusBadRequest, "INVALID_PARAMETER", "file is required")
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", apierrors.New(http.StatusBadRequest, "INVALID_PARAMETER", "file must be a bare file name")
	}
	return filepath.Join(h.dataDir, name), nil
}

func (h *SeriesHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierrors.FromAppError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Series request failed",
			slog.String("error", err.Error()))
	}
	render.Render(w, r, apiErr)
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func toPoint(record domain.OutputRecord) SeriesPoint {
	point := SeriesPoint{
		Timestamp: record.Timestamp,
		RawText:   record.RawText,
		Mask:      string(record.Mask),
		Anomaly:   string(record.Anomaly),
		Quality:   string(record.Quality),
	}
	if !math.IsNaN(record.Value) && !math.IsInf(record.Value, 0) {
		v := record.Value
		point.Value = &v
	}
	return point
}
