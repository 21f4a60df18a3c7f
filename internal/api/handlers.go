package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/serialscope/serialscope/internal/constants"
	"github.com/serialscope/serialscope/internal/domain"
	"github.com/serialscope/serialscope/internal/feed"
	"github.com/serialscope/serialscope/internal/monitor"
	"github.com/serialscope/serialscope/internal/record"
)

// Handlers contains all HTTP handlers. Every dependency is required.
type Handlers struct {
	registry   *monitor.Registry
	feed       *feed.Manager
	recorder   *record.Recorder
	configFile string
	startedAt  time.Time
	shutdownFn func()
	log        *logrus.Entry
}

// NewHandlers creates new HTTP handlers
func NewHandlers(reg *monitor.Registry, feedMgr *feed.Manager, recorder *record.Recorder, configFile string, shutdownFn func(), logger *logrus.Logger) *Handlers {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handlers{
		registry:   reg,
		feed:       feedMgr,
		recorder:   recorder,
		configFile: configFile,
		startedAt:  time.Now(),
		shutdownFn: shutdownFn,
		log:        logger.WithField("component", "api"),
	}
}

// DumpOptions configures dump extraction in add-port requests
type DumpOptions struct {
	Marker    string `json:"marker"`
	AutoStart bool   `json:"auto_start"`
}

// AddPortRequest is the body for POST /ports and the elements of /ports/batch
type AddPortRequest struct {
	Port            string       `json:"port"`
	Baud            int          `json:"baud"`
	Keywords        []string     `json:"keywords"`
	Regex           []string     `json:"regex"`
	SaveAll         bool         `json:"save_all"`
	Color           bool         `json:"color"`
	ThrottleMs      int          `json:"throttle_ms"`
	CaseInsensitive bool         `json:"case_insensitive"`
	Dump            *DumpOptions `json:"dump,omitempty"`
}

func (req AddPortRequest) toSessionConfig() domain.SessionConfig {
	cfg := domain.SessionConfig{
		Port:          req.Port,
		BaudRate:      req.Baud,
		Keywords:      req.Keywords,
		RegexPatterns: req.Regex,
		Options: domain.SessionOptions{
			SaveAllToLog:     req.SaveAll,
			ColorOutput:      req.Color,
			CaseInsensitive:  req.CaseInsensitive,
			CallbackThrottle: time.Duration(req.ThrottleMs) * time.Millisecond,
		},
	}
	if req.Dump != nil {
		cfg.Options.Dump = domain.DumpConfig{Marker: req.Dump.Marker, AutoStart: req.Dump.AutoStart}
	}
	return cfg
}

// BatchAddRequest is the body for POST /ports/batch
type BatchAddRequest struct {
	Ports []AddPortRequest `json:"ports"`
}

// SendRequest is the body for POST /ports/send
type SendRequest struct {
	Port string `json:"port"`
	Data string `json:"data"`
}

// UpdateFiltersRequest is the body for PUT /ports/filters. A missing or
// null rule list keeps that rule kind unchanged; an empty list clears it.
type UpdateFiltersRequest struct {
	Port     string   `json:"port"`
	Keywords []string `json:"keywords"`
	Regex    []string `json:"regex"`
}

// BaudRequest is the body for PUT /ports/baud. An empty port applies the
// rate to every session.
type BaudRequest struct {
	Port string `json:"port"`
	Baud int    `json:"baud"`
}

// PortRequest is the body for operations that only name a port
type PortRequest struct {
	Port string `json:"port"`
}

// GetStatus handles GET /api/v1/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:        "running",
		ActivePorts:   h.registry.Count(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		ConfigFile:    h.configFile,
		APIVersion:    "v1",
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetPorts handles GET /api/v1/ports
func (h *Handlers) GetPorts(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.AllStats()

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := PortListResponse{Ports: make([]PortResponse, 0, len(names))}
	for _, name := range names {
		resp.Ports = append(resp.Ports, ToPortResponse(stats[name], h.recorder.Active(name)))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetAvailablePorts handles GET /api/v1/ports/available
func (h *Handlers) GetAvailablePorts(w http.ResponseWriter, r *http.Request) {
	ports, err := monitor.ListAvailablePorts()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, AvailablePortsResponse{Ports: ports})
}

// AddPort handles POST /api/v1/ports
func (h *Handlers) AddPort(w http.ResponseWriter, r *http.Request) {
	var req AddPortRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeInvalidRequest(w, err)
		return
	}

	if err := h.registry.Add(req.toSessionConfig()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// BatchAddPorts handles POST /api/v1/ports/batch
func (h *Handlers) BatchAddPorts(w http.ResponseWriter, r *http.Request) {
	var req BatchAddRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeInvalidRequest(w, err)
		return
	}

	configs := make([]domain.SessionConfig, 0, len(req.Ports))
	for _, p := range req.Ports {
		configs = append(configs, p.toSessionConfig())
	}

	results := h.registry.AddManyParallel(configs)
	h.writeJSON(w, http.StatusOK, toBatchResponse(results))
}

// RemovePort handles DELETE /api/v1/ports?port=
func (h *Handlers) RemovePort(w http.ResponseWriter, r *http.Request) {
	port := r.URL.Query().Get("port")
	if port == "" {
		h.writeError(w, domain.ErrEmptyPortName)
		return
	}

	if err := h.registry.Remove(port); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// SendData handles POST /api/v1/ports/send
func (h *Handlers) SendData(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeInvalidRequest(w, err)
		return
	}

	data := []byte(req.Data)
	if err := h.registry.Send(req.Port, data); err != nil {
		h.writeError(w, err)
		return
	}
	h.recorder.RecordSend(req.Port, data)
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// UpdateFilters handles PUT /api/v1/ports/filters
func (h *Handlers) UpdateFilters(w http.ResponseWriter, r *http.Request) {
	var req UpdateFiltersRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeInvalidRequest(w, err)
		return
	}

	if err := h.registry.UpdateFilters(req.Port, req.Keywords, req.Regex); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// ChangeBaud handles PUT /api/v1/ports/baud
func (h *Handlers) ChangeBaud(w http.ResponseWriter, r *http.Request) {
	var req BaudRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeInvalidRequest(w, err)
		return
	}

	if req.Port != "" {
		if err := h.registry.ChangeBaudRate(req.Port, req.Baud); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
		return
	}

	results := h.registry.ChangeAllBaudRates(req.Baud)
	h.writeJSON(w, http.StatusOK, toBatchResponse(results))
}

// StartDump handles POST /api/v1/dump/start
func (h *Handlers) StartDump(w http.ResponseWriter, r *http.Request) {
	var req PortRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeInvalidRequest(w, err)
		return
	}

	if err := h.registry.StartDump(req.Port); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// StopDump handles POST /api/v1/dump/stop
func (h *Handlers) StopDump(w http.ResponseWriter, r *http.Request) {
	var req PortRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeInvalidRequest(w, err)
		return
	}

	if err := h.registry.StopDump(req.Port); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// GetStats handles GET /api/v1/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.AllStats()

	resp := StatsResponse{
		Ports: make(map[string]PortResponse, len(stats)),
		Feed:  ToFeedStatsResponse(h.feed.Stats()),
	}
	for port, st := range stats {
		resp.Ports[port] = ToPortResponse(st, h.recorder.Active(port))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetLines handles GET /api/v1/lines
func (h *Handlers) GetLines(w http.ResponseWriter, r *http.Request) {
	filter, limit := parseLineParams(r)

	events, total, err := h.feed.QueryLast(filter, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := LinesResponse{
		Lines:         make([]LineResponse, len(events)),
		FilteredCount: len(events),
		TotalCount:    total,
	}
	for i, ev := range events {
		resp.Lines[i] = ToLineResponse(ev)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// StartRecording handles POST /api/v1/record/start
func (h *Handlers) StartRecording(w http.ResponseWriter, r *http.Request) {
	var req PortRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeInvalidRequest(w, err)
		return
	}

	st, err := h.registry.Stats(req.Port)
	if err != nil {
		h.writeError(w, err)
		return
	}
	keywords, patterns, err := h.registry.Rules(req.Port)
	if err != nil {
		h.writeError(w, err)
		return
	}

	meta := record.Meta{
		Port:          req.Port,
		BaudRate:      st.BaudRate,
		Keywords:      keywords,
		RegexPatterns: patterns,
	}
	if err := h.recorder.Start(meta); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// StopRecording handles POST /api/v1/record/stop
func (h *Handlers) StopRecording(w http.ResponseWriter, r *http.Request) {
	var req PortRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeInvalidRequest(w, err)
		return
	}

	path, err := h.recorder.Stop(req.Port)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RecordStopResponse{Success: true, Path: path})
}

// Shutdown handles POST /api/v1/shutdown
func (h *Handlers) Shutdown(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})

	// Trigger shutdown asynchronously
	go func() {
		time.Sleep(100 * time.Millisecond) // Let response complete
		if h.shutdownFn != nil {
			h.shutdownFn()
		}
	}()
}

// parseLineParams extracts feed filter parameters from request
func parseLineParams(r *http.Request) (domain.LineFilter, int) {
	filter := domain.LineFilter{}

	if ports := r.URL.Query().Get("port"); ports != "" {
		filter.Ports = strings.Split(ports, ",")
	}

	filter.Pattern = r.URL.Query().Get("pattern")
	if r.URL.Query().Get("regex") == "true" {
		filter.IsRegex = true
	}

	// Lines limit (default 100, capped to prevent memory exhaustion)
	limit := constants.DefaultLineLimit
	if linesStr := r.URL.Query().Get("lines"); linesStr != "" {
		if l, err := strconv.Atoi(linesStr); err == nil && l > 0 {
			if l > constants.MaxLineLimit {
				limit = constants.MaxLineLimit
			} else {
				limit = l
			}
		}
	}

	return filter, limit
}

func toBatchResponse(results map[string]error) BatchResponse {
	resp := BatchResponse{Results: make(map[string]BatchResult, len(results))}
	for port, err := range results {
		if err != nil {
			resp.Results[port] = BatchResult{Success: false, Error: err.Error(), Code: domain.ErrorCode(err)}
		} else {
			resp.Results[port] = BatchResult{Success: true}
		}
	}
	return resp
}

func decodeRequest(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %v", err)
	}
	return nil
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Warn("error encoding response")
	}
}

// writeError maps domain errors to HTTP status codes. Unknown errors are
// logged and reported with a sanitized message.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	code := domain.ErrorCode(err)
	message := err.Error()
	if code == "INTERNAL_ERROR" {
		h.log.WithError(err).Error("internal error")
		message = "an internal error occurred"
	}
	h.writeJSON(w, statusForCode(code), ErrorResponse{Error: message, Code: code})
}

func (h *Handlers) writeInvalidRequest(w http.ResponseWriter, err error) {
	h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: domain.ErrCodeInvalidRequest})
}

func statusForCode(code string) int {
	switch code {
	case domain.ErrCodeSessionNotFound:
		return http.StatusNotFound
	case domain.ErrCodeInvalidPattern,
		domain.ErrCodeInvalidBaudRate,
		domain.ErrCodeEmptyPortName,
		domain.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case domain.ErrCodeSessionExists,
		domain.ErrCodeSessionRunning,
		domain.ErrCodeSessionNotRunning,
		domain.ErrCodeSessionStopped,
		domain.ErrCodePortNotOpen,
		domain.ErrCodeDumpActive,
		domain.ErrCodeDumpNotActive,
		domain.ErrCodeRecordingActive,
		domain.ErrCodeRecordingNotActive:
		return http.StatusConflict
	case domain.ErrCodeFeedClosed,
		domain.ErrCodeTooManySubscribers,
		domain.ErrCodeShutdownInProgress:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
