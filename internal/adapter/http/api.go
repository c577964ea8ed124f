package http

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
)

var errBadRequest = errors.New("bad request")

type rawRecordJSON struct {
	EpochSeconds int64    `json:"epoch_seconds"`
	FileName     string   `json:"file_name"`
	RecordedAt   string   `json:"recorded_at"`
	SpeedX       *float64 `json:"speed_x"`
	SpeedY       *float64 `json:"speed_y"`
	SpeedZ       *float64 `json:"speed_z"`
	DispX        *float64 `json:"displacement_x"`
	DispY        *float64 `json:"displacement_y"`
	DispZ        *float64 `json:"displacement_z"`
	Temperature  *float64 `json:"temperature"`
}

type gpsResultJSON struct {
	EpochSeconds      int64    `json:"epoch_seconds"`
	Timestamp         string   `json:"timestamp"`
	Latitude          float64  `json:"latitude"`
	Longitude         float64  `json:"longitude"`
	VelocityMagnitude *float64 `json:"velocity_magnitude"`
	VelocityDirection *float64 `json:"velocity_direction"`
}

func (s *Server) handleFileResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.records.ResultsByFile(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]domain.ResultMessage, len(results))
	for i, rec := range results {
		out[i] = domain.NewResultMessage(rec)
	}
	sharedobs.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleFileRaw(w http.ResponseWriter, r *http.Request) {
	raws, err := s.records.RawByFile(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]rawRecordJSON, len(raws))
	for i, rec := range raws {
		out[i] = rawRecordJSON{
			EpochSeconds: int64(rec.Key),
			FileName:     rec.FileName,
			RecordedAt:   rec.RecordedAt.Format(time.RFC3339Nano),
			SpeedX:       finite(rec.SpeedX),
			SpeedY:       finite(rec.SpeedY),
			SpeedZ:       finite(rec.SpeedZ),
			DispX:        finite(rec.DispX),
			DispY:        finite(rec.DispY),
			DispZ:        finite(rec.DispZ),
			Temperature:  finite(rec.Temperature),
		}
	}
	sharedobs.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	key, err := strconv.ParseInt(r.PathValue("key"), 10, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: key must be epoch seconds", errBadRequest))
		return
	}
	rec, err := s.records.GetResult(r.Context(), domain.EpochKey(key))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, domain.NewResultMessage(rec))
}

func (s *Server) handleResultRange(w http.ResponseWriter, r *http.Request) {
	start, end, err := keyRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	results, err := s.records.ResultsInRange(r.Context(), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]domain.ResultMessage, len(results))
	for i, rec := range results {
		out[i] = domain.NewResultMessage(rec)
	}
	sharedobs.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleGPS(w http.ResponseWriter, r *http.Request) {
	start, end, err := keyRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fixes, err := s.records.GPSResultsInRange(r.Context(), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]gpsResultJSON, len(fixes))
	for i, f := range fixes {
		out[i] = gpsResultJSON{
			EpochSeconds:      int64(f.Key),
			Timestamp:         f.Timestamp.Format(time.RFC3339),
			Latitude:          f.Latitude,
			Longitude:         f.Longitude,
			VelocityMagnitude: finite(f.VelocityMagnitude),
			VelocityDirection: finite(f.VelocityDirection),
		}
	}
	sharedobs.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleSeverity(w http.ResponseWriter, r *http.Request) {
	start, end, err := keyRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	layer, err := s.layers.Layer(r.Context(), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := layer.Marshal()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("encode severity layer: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// keyRange reads the start and end query parameters. Each accepts epoch
// seconds or RFC 3339; a missing bound is open.
func keyRange(r *http.Request) (domain.EpochKey, domain.EpochKey, error) {
	start, err := parseBound(r.URL.Query().Get("start"), domain.MinKey)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: start: %w", errBadRequest, err)
	}
	end, err := parseBound(r.URL.Query().Get("end"), domain.MaxKey)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: end: %w", errBadRequest, err)
	}
	return start, end, nil
}

func parseBound(s string, def domain.EpochKey) (domain.EpochKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return domain.KeyOf(n), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("%q is neither epoch seconds nor RFC 3339", s)
	}
	return domain.KeyOf(t), nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	default:
		s.logger.Error("api request failed", "path", r.URL.Path, "error", err)
	}
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
