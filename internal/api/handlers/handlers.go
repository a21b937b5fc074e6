// Package handlers provides HTTP handlers for the REST API.
package handlers

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cisco/edge-temperature-pipeline/internal/edge"
	"github.com/cisco/edge-temperature-pipeline/internal/ingest"
	"github.com/cisco/edge-temperature-pipeline/internal/query"
	"github.com/cisco/edge-temperature-pipeline/internal/uploader"
	"github.com/cisco/edge-temperature-pipeline/internal/window"
	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

// UploadStatser reports upload queue statistics.
type UploadStatser interface {
	GetStats() uploader.QueueStats
}

// ProcessorStatus reports the driving loop state.
type ProcessorStatus interface {
	Status() edge.Status
	Results() []edge.QueryResult
}

// Dependencies are the components the handlers read from. Only Store is required.
type Dependencies struct {
	Store     *window.Store
	Uploads   UploadStatser
	Processor ProcessorStatus
	Sources   func() []ingest.SourceStats
	Logger    *zap.SugaredLogger
}

// Handler handles sensor query API requests.
type Handler struct {
	store     *window.Store
	engine    *query.Engine
	uploads   UploadStatser
	processor ProcessorStatus
	sources   func() []ingest.SourceStats
	log       *zap.SugaredLogger
	started   time.Time
}

// NewHandler creates a new handler over the windowed store.
func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		store:     deps.Store,
		engine:    query.NewEngine(deps.Store),
		uploads:   deps.Uploads,
		processor: deps.Processor,
		sources:   deps.Sources,
		log:       logger,
		started:   time.Now(),
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error" example:"not_found"`
	Message string `json:"message,omitempty" example:"No readings for sensor s9"`
}

// SensorSummary is one entry of the sensor listing.
type SensorSummary struct {
	SensorID models.SensorID `json:"sensor_id" example:"s1"`
	Latest   models.Reading  `json:"latest"`
	Readings int             `json:"readings" example:"6"`
}

// SensorListResponse represents the response for listing sensors.
type SensorListResponse struct {
	Data  []SensorSummary `json:"data"`
	Count int             `json:"count" example:"5"`
}

// SensorResponse represents a single sensor's latest reading.
type SensorResponse struct {
	SensorID models.SensorID `json:"sensor_id" example:"s1"`
	Latest   models.Reading  `json:"latest"`
	Readings int             `json:"readings" example:"6"`
	Capacity int             `json:"capacity" example:"6"`
	Unit     string          `json:"unit" example:"°C"`
}

// WindowResponse represents a sensor's retained readings, oldest first.
type WindowResponse struct {
	SensorID models.SensorID  `json:"sensor_id" example:"s1"`
	Capacity int              `json:"capacity" example:"6"`
	Data     []models.Reading `json:"data"`
	Count    int              `json:"count" example:"6"`
}

// TopKResponse represents a ranking result.
type TopKResponse struct {
	K            int                   `json:"k" example:"3"`
	Sensors      []models.SensorID     `json:"sensors"`
	AbsentPolicy string                `json:"absent_policy" example:"exclude"`
	Data         []models.RankedSensor `json:"data"`
	Count        int                   `json:"count" example:"3"`
}

// ValuesResponse represents a per-sensor value mapping (aggregate or current).
type ValuesResponse struct {
	Data  map[models.SensorID]float64 `json:"data"`
	Count int                         `json:"count" example:"5"`
	Unit  string                      `json:"unit" example:"°C"`
}

// QueriesResponse lists the latest evaluation of every configured query.
type QueriesResponse struct {
	Data  []edge.QueryResult `json:"data"`
	Count int                `json:"count" example:"2"`
}

// StatsResponse represents the system statistics.
type StatsResponse struct {
	Store     window.Stats         `json:"store"`
	Uploads   *uploader.QueueStats `json:"uploads,omitempty"`
	Processor *edge.Status         `json:"processor,omitempty"`
	Sources   []ingest.SourceStats `json:"sources,omitempty"`
	Uptime    string               `json:"uptime" example:"1h2m3s"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

// ListSensors godoc
// @Summary      List sensors
// @Description  Returns every sensor with at least one retained reading, in first-seen order
// @Tags         sensors
// @Produce      json
// @Success      200  {object}  SensorListResponse
// @Router       /api/v1/sensors [get]
func (h *Handler) ListSensors(w http.ResponseWriter, r *http.Request) {
	ids := h.store.KnownSensors()
	data := make([]SensorSummary, 0, len(ids))
	for _, id := range ids {
		latest, ok := h.store.Latest(id)
		if !ok {
			continue
		}
		data = append(data, SensorSummary{SensorID: id, Latest: latest, Readings: h.store.Len(id)})
	}

	writeJSON(w, http.StatusOK, SensorListResponse{
		Data:  data,
		Count: len(data),
	})
}

// GetSensor godoc
// @Summary      Get latest reading
// @Description  Returns the most recent reading of a sensor
// @Tags         sensors
// @Produce      json
// @Param        id   path      string  true  "Sensor ID"
// @Success      200  {object}  SensorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/sensors/{id} [get]
func (h *Handler) GetSensor(w http.ResponseWriter, r *http.Request) {
	id := models.SensorID(mux.Vars(r)["id"])

	latest, ok := h.store.Latest(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "No readings for sensor "+string(id))
		return
	}

	writeJSON(w, http.StatusOK, SensorResponse{
		SensorID: id,
		Latest:   latest,
		Readings: h.store.Len(id),
		Capacity: h.store.Capacity(),
		Unit:     models.UnitCelsius,
	})
}

// GetSensorWindow godoc
// @Summary      Get sensor window
// @Description  Returns the retained readings of a sensor, oldest first, as JSON or CSV
// @Tags         sensors
// @Produce      json
// @Produce      text/csv
// @Param        id      path      string  true   "Sensor ID"
// @Param        format  query     string  false  "Output format"  Enums(json, csv)  default(json)
// @Success      200  {object}  WindowResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /api/v1/sensors/{id}/window [get]
func (h *Handler) GetSensorWindow(w http.ResponseWriter, r *http.Request) {
	id := models.SensorID(mux.Vars(r)["id"])

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format != "" && format != "json" && format != "csv" {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid format. Use json or csv")
		return
	}

	readings := h.store.Window(id)
	if len(readings) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "No readings for sensor "+string(id))
		return
	}

	if format == "csv" {
		h.writeWindowCSV(w, id, readings)
		return
	}

	writeJSON(w, http.StatusOK, WindowResponse{
		SensorID: id,
		Capacity: h.store.Capacity(),
		Data:     readings,
		Count:    len(readings),
	})
}

// writeWindowCSV writes readings in the same layout the simulator replays.
func (h *Handler) writeWindowCSV(w http.ResponseWriter, id models.SensorID, readings []models.Reading) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+string(id)+"_window.csv")
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"timestamp", "sensor_id", "temperature"})
	for _, rd := range readings {
		_ = cw.Write([]string{
			rd.Timestamp.UTC().Format(time.RFC3339Nano),
			string(id),
			strconv.FormatFloat(rd.Value, 'f', -1, 64),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.log.Warnw("Failed to write CSV window", "sensor_id", id, "error", err)
	}
}

// TopK godoc
// @Summary      Top-k hottest sensors
// @Description  Ranks sensors by latest reading, descending; ties keep the order of the sensors parameter
// @Tags         queries
// @Produce      json
// @Param        k        query     int     false  "Number of sensors"                           default(3)
// @Param        sensors  query     string  false  "Comma-separated candidate subset (default: all known)"
// @Param        absent   query     string  false  "Absent sensor policy"  Enums(exclude, zero)  default(exclude)
// @Success      200  {object}  TopKResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /api/v1/topk [get]
func (h *Handler) TopK(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	k := 3
	if kStr := q.Get("k"); kStr != "" {
		parsed, err := strconv.Atoi(kStr)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "Invalid k parameter")
			return
		}
		k = parsed
	}

	policy, err := query.ParseAbsentPolicy(q.Get("absent"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid absent parameter. Use exclude or zero")
		return
	}

	var subset []models.SensorID
	if raw := q.Get("sensors"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				subset = append(subset, models.SensorID(s))
			}
		}
	} else {
		subset = h.store.KnownSensors()
	}

	ranking := h.engine.Rank(k, subset, policy)
	writeJSON(w, http.StatusOK, TopKResponse{
		K:            k,
		Sensors:      subset,
		AbsentPolicy: policy.String(),
		Data:         ranking,
		Count:        len(ranking),
	})
}

// Aggregate godoc
// @Summary      Per-sensor mean
// @Description  Returns the mean of every retained reading per sensor; sensors without data are omitted
// @Tags         queries
// @Produce      json
// @Success      200  {object}  ValuesResponse
// @Router       /api/v1/aggregate [get]
func (h *Handler) Aggregate(w http.ResponseWriter, r *http.Request) {
	agg := h.engine.Aggregate()
	writeJSON(w, http.StatusOK, ValuesResponse{Data: agg, Count: len(agg), Unit: models.UnitCelsius})
}

// Current godoc
// @Summary      Latest value per sensor
// @Description  Returns the most recent reading of every sensor with data
// @Tags         queries
// @Produce      json
// @Success      200  {object}  ValuesResponse
// @Router       /api/v1/current [get]
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	cur := h.engine.Current()
	writeJSON(w, http.StatusOK, ValuesResponse{Data: cur, Count: len(cur), Unit: models.UnitCelsius})
}

// ListQueries godoc
// @Summary      Configured query results
// @Description  Returns the latest evaluation of each configured ranking query
// @Tags         queries
// @Produce      json
// @Success      200  {object}  QueriesResponse
// @Router       /api/v1/queries [get]
func (h *Handler) ListQueries(w http.ResponseWriter, r *http.Request) {
	results := []edge.QueryResult{}
	if h.processor != nil {
		results = h.processor.Results()
	}
	writeJSON(w, http.StatusOK, QueriesResponse{Data: results, Count: len(results)})
}

// GetStats godoc
// @Summary      Get system statistics
// @Description  Returns store, upload queue, driving loop and ingestion statistics
// @Tags         system
// @Produce      json
// @Success      200  {object}  StatsResponse
// @Router       /api/v1/stats [get]
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Store:  h.store.Stats(),
		Uptime: time.Since(h.started).Round(time.Second).String(),
	}
	if h.uploads != nil {
		st := h.uploads.GetStats()
		resp.Uploads = &st
	}
	if h.processor != nil {
		st := h.processor.Status()
		resp.Processor = &st
	}
	if h.sources != nil {
		resp.Sources = h.sources()
	}
	writeJSON(w, http.StatusOK, resp)
}
