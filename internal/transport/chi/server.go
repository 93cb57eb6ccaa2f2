// Package chi exposes the HTTP API.
package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Bryant-Tello/Entel/internal/domain"
	"github.com/Bryant-Tello/Entel/internal/metrics"
	analysisuc "github.com/Bryant-Tello/Entel/internal/usecase/analysis"
	healthuc "github.com/Bryant-Tello/Entel/internal/usecase/health"
	searchuc "github.com/Bryant-Tello/Entel/internal/usecase/search"
	uploaduc "github.com/Bryant-Tello/Entel/internal/usecase/upload"
	usageuc "github.com/Bryant-Tello/Entel/internal/usecase/usage"
)

const (
	maxUploadBytes   = 10 << 20
	maxListLimit     = 100
	maxSearchLimit   = 100
	maxClassifyBatch = 100
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server routes API requests to the use case services.
type Server struct {
	upload        *uploaduc.Service
	search        *searchuc.Service
	analysis      *analysisuc.Service
	usage         *usageuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	upload *uploaduc.Service,
	search *searchuc.Service,
	analysis *analysisuc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		upload:   upload,
		search:   search,
		analysis: analysis,
		usage:    usage,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "not_found"),
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrEmptyTranscript, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrInvalidFilename, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, "vector_dim_mismatch"),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"),
		sentinelHandler(domain.ErrBudgetExceeded, http.StatusPaymentRequired, "budget_exceeded"),
		sentinelHandler(domain.ErrProviderUnavailable, http.StatusBadGateway, "provider_error"),
	}
	return s
}

// Handler builds the full router including middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload/transcript", s.uploadTranscript)
		r.Post("/search", s.searchTranscripts)
		r.Get("/transcripts", s.listTranscripts)
		r.Get("/transcripts/{filename}", s.getTranscript)
		r.Delete("/delete/transcript/{filename}", s.deleteTranscript)
		r.Delete("/delete/all", s.deleteAll)
		r.Get("/topics", s.getTopics)
		r.Post("/analysis/classify", s.classifyTranscripts)
		r.Get("/usage", s.getUsage)
	})
	r.Get("/healthz", s.healthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

type uploadRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type uploadResponse struct {
	Filename  string   `json:"filename"`
	Embedded  bool     `json:"embedded"`
	Category  string   `json:"category,omitempty"`
	MainTopic string   `json:"main_topic,omitempty"`
	Notes     []string `json:"notes,omitempty"`
}

// uploadTranscript handles POST /api/upload/transcript. Accepts either a
// multipart form with a "file" field or a JSON body.
func (s *Server) uploadTranscript(w http.ResponseWriter, r *http.Request) {
	filename, content, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid upload: "+err.Error())
		return
	}

	result, err := s.upload.Upload(r.Context(), filename, content)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		Filename:  result.Filename,
		Embedded:  result.Embedded,
		Category:  string(result.Category),
		MainTopic: result.MainTopic,
		Notes:     result.Notes,
	})
}

func readUpload(r *http.Request) (filename, content string, err error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return "", "", err
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", "", err
		}
		defer func() { _ = file.Close() }()

		data, err := io.ReadAll(file)
		if err != nil {
			return "", "", err
		}
		return header.Filename, string(data), nil
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", "", err
	}
	return req.Filename, req.Content, nil
}

type searchRequest struct {
	Query     string  `json:"query"`
	Limit     int     `json:"limit"`
	Threshold float64 `json:"threshold"`
}

type searchResultItem struct {
	Filename string  `json:"filename"`
	Category string  `json:"category,omitempty"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet"`
	Source   string  `json:"source"`
}

type searchResponse struct {
	Query   string             `json:"query"`
	Total   int                `json:"total"`
	Results []searchResultItem `json:"results"`
}

// searchTranscripts handles POST /api/search.
func (s *Server) searchTranscripts(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Limit < 0 || req.Limit > maxSearchLimit {
		writeError(w, http.StatusBadRequest, "validation_failed",
			"limit must be between 1 and "+strconv.Itoa(maxSearchLimit))
		return
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		writeError(w, http.StatusBadRequest, "validation_failed", "threshold must be between 0 and 1")
		return
	}

	results, err := s.search.Search(r.Context(), req.Query, req.Limit, req.Threshold)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultItem, len(results))
	for i, res := range results {
		items[i] = searchResultItem{
			Filename: res.Filename,
			Category: string(res.Category),
			Score:    res.Score,
			Snippet:  res.Snippet,
			Source:   string(res.Source),
		}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: req.Query, Total: len(items), Results: items})
}

type transcriptResponse struct {
	Filename       string   `json:"filename"`
	Content        string   `json:"content,omitempty"`
	CleanedContent string   `json:"cleaned_content"`
	Category       string   `json:"category,omitempty"`
	MainTopic      string   `json:"main_topic,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	Embedded       bool     `json:"embedded"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

func transcriptToResponse(t domain.Transcript, includeContent bool) transcriptResponse {
	resp := transcriptResponse{
		Filename:       t.Filename,
		CleanedContent: t.CleanedContent,
		Category:       string(t.Category),
		MainTopic:      t.MainTopic,
		Keywords:       t.Keywords,
		Embedded:       len(t.Embedding) > 0,
		CreatedAt:      t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:      t.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if includeContent {
		resp.Content = t.RawContent
	}
	return resp
}

// listTranscripts handles GET /api/transcripts with skip/limit pagination.
// Raw content is never included in listings.
func (s *Server) listTranscripts(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil || skip < 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "skip must be >= 0")
		return
	}
	limit, err := queryInt(r, "limit", maxListLimit)
	if err != nil || limit < 1 || limit > maxListLimit {
		writeError(w, http.StatusBadRequest, "validation_failed",
			"limit must be between 1 and "+strconv.Itoa(maxListLimit))
		return
	}

	all, err := s.upload.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	// SCAN returns keys in no particular order; sort for stable pagination.
	sort.Slice(all, func(i, j int) bool { return all[i].Filename < all[j].Filename })

	if skip > len(all) {
		skip = len(all)
	}
	end := skip + limit
	if end > len(all) {
		end = len(all)
	}

	items := make([]transcriptResponse, 0, end-skip)
	for _, t := range all[skip:end] {
		items = append(items, transcriptToResponse(t, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":       len(all),
		"transcripts": items,
	})
}

// getTranscript handles GET /api/transcripts/{filename}.
func (s *Server) getTranscript(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	includeContent := r.URL.Query().Get("include_content") != "false"

	t, err := s.upload.Get(r.Context(), filename)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transcriptToResponse(t, includeContent))
}

// deleteTranscript handles DELETE /api/delete/transcript/{filename}.
func (s *Server) deleteTranscript(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	if err := s.upload.Delete(r.Context(), filename); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filename": filename})
}

// deleteAll handles DELETE /api/delete/all.
func (s *Server) deleteAll(w http.ResponseWriter, r *http.Request) {
	count, err := s.upload.DeleteAll(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_count": count})
}

type topicEntry struct {
	Filename  string   `json:"filename"`
	MainTopic string   `json:"main_topic"`
	Keywords  []string `json:"keywords,omitempty"`
}

// getTopics handles GET /api/topics.
func (s *Server) getTopics(w http.ResponseWriter, r *http.Request) {
	report, err := s.analysis.Topics(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	groups := make(map[string][]topicEntry, len(report.Groups))
	for category, entries := range report.Groups {
		items := make([]topicEntry, len(entries))
		for i, e := range entries {
			items[i] = topicEntry{Filename: e.Filename, MainTopic: e.MainTopic, Keywords: e.Keywords}
		}
		groups[category] = items
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":               report.Total,
		"grouped_by_category": groups,
	})
}

type classifyRequest struct {
	Filenames []string `json:"filenames"`
}

type classifyResultItem struct {
	Filename  string   `json:"filename"`
	Category  string   `json:"category"`
	MainTopic string   `json:"main_topic"`
	Keywords  []string `json:"keywords,omitempty"`
}

// classifyTranscripts handles POST /api/analysis/classify. Without an
// explicit filename list it backfills every embedded transcript that is
// still unclassified; an empty body is a full sweep.
func (s *Server) classifyTranscripts(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if len(req.Filenames) > maxClassifyBatch {
		writeError(w, http.StatusBadRequest, "validation_failed",
			"cannot classify more than "+strconv.Itoa(maxClassifyBatch)+" transcripts at once")
		return
	}

	results, err := s.analysis.ClassifyPending(r.Context(), req.Filenames)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]classifyResultItem, len(results))
	for i, res := range results {
		items[i] = classifyResultItem{
			Filename:  res.Filename,
			Category:  res.Category,
			MainTopic: res.MainTopic,
			Keywords:  res.Keywords,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(items), "results": items})
}

type usageResponse struct {
	Month        string  `json:"month"`
	Tokens       int64   `json:"tokens"`
	Requests     int64   `json:"requests"`
	CostUSD      float64 `json:"cost_usd"`
	LimitUSD     float64 `json:"limit_usd,omitempty"`
	RemainingUSD float64 `json:"remaining_usd"`
	Exhausted    bool    `json:"exhausted"`
}

// getUsage handles GET /api/usage.
func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	report, err := s.usage.GetReport(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{
		Month:        report.Month,
		Tokens:       report.Tokens,
		Requests:     report.Requests,
		CostUSD:      report.CostUSD,
		LimitUSD:     report.LimitUSD,
		RemainingUSD: report.RemainingUSD,
		Exhausted:    report.Exhausted,
	})
}

// healthCheck handles GET /healthz.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrEmptyQuery,
		domain.ErrEmptyTranscript,
		domain.ErrInvalidFilename,
		domain.ErrVectorDimMismatch,
		domain.ErrRateLimited,
		domain.ErrBudgetExceeded,
		domain.ErrProviderUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
