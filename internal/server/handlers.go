package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/smriti-ai/smriti/internal/config"
	"github.com/smriti-ai/smriti/internal/data"
	"github.com/smriti-ai/smriti/internal/ingest"
	"github.com/smriti-ai/smriti/internal/models"
	"github.com/smriti-ai/smriti/internal/vector"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("k", query.K))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		if errors.Is(err, vector.ErrDimensionMismatch) || errors.Is(err, models.ErrInvalidQuery) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*models.SearchResponse
	}{true, response})
}

func (s *Server) handleIngestPage(w http.ResponseWriter, r *http.Request) {
	var input models.PageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ingest page request", zap.String("url", input.URL))
	page, err := s.ingester.IngestPage(r.Context(), &input)
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyURL) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("page ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, struct {
		Success bool         `json:"success"`
		Page    *models.Page `json:"page"`
	}{true, page})
}

type historyRequest struct {
	Items []models.HistoryItem `json:"items"`
}

func (s *Server) handleHistoryImport(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		s.respondError(w, http.StatusBadRequest, "items are required")
		return
	}
	// The job outlives this request, so it gets its own context.
	job := s.ingester.StartHistoryImport(context.Background(), req.Items)
	s.logger.Info("history import started",
		zap.String("job_id", job.ID),
		zap.Int("total", len(req.Items)))
	s.respondJSON(w, http.StatusAccepted, struct {
		Success bool   `json:"success"`
		JobID   string `json:"job_id"`
		Total   int    `json:"total"`
	}{true, job.ID, len(req.Items)})
}

func (s *Server) handleHistoryJob(w http.ResponseWriter, r *http.Request) {
	job := s.ingester.JobByID(chi.URLParam(r, "id"))
	if job == nil {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	s.respondJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		ingest.JobProgress
	}{true, job.Progress()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, struct {
		Success bool               `json:"success"`
		Stats   *models.IndexStats `json:"stats"`
	}{true, s.engine.Stats(r.Context())})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	s.rebuildMu.Lock()
	if s.rebuildRunning {
		s.rebuildMu.Unlock()
		s.respondError(w, http.StatusConflict, "rebuild already in progress")
		return
	}
	s.rebuildRunning = true
	s.rebuildMu.Unlock()

	// Searches keep answering via the exact fallback while this runs.
	go func() {
		if err := s.manager.Rebuild(context.Background()); err != nil {
			s.logger.Error("rebuild failed", zap.Error(err))
		}
		s.rebuildMu.Lock()
		s.rebuildRunning = false
		s.rebuildMu.Unlock()
	}()

	s.respondJSON(w, http.StatusAccepted, struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}{true, "rebuilding"})
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := s.engine.AvailableDomains(r.Context())
	if err != nil {
		s.logger.Error("domain listing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, struct {
		Success bool     `json:"success"`
		Domains []string `json:"domains"`
	}{true, domains})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch config.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rebuildRequired, err := s.engine.UpdateSettings(&patch)
	if err != nil {
		if errors.Is(err, config.ErrInvalidSetting) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("settings update failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, struct {
		Success         bool `json:"success"`
		RebuildRequired bool `json:"rebuild_required"`
	}{true, rebuildRequired})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.porter.Export(r.Context())
	if err != nil {
		s.logger.Error("export failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*models.Snapshot
	}{true, snapshot})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var snapshot models.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.porter.Import(r.Context(), &snapshot)
	if err != nil {
		if errors.Is(err, data.ErrInvalidFormat) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("import failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		*models.ImportResult
	}{true, result})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.porter.Clear(r.Context()); err != nil {
		s.logger.Error("clear failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}{true, "cleared"})
}

type embedRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		s.respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	vec, err := s.embedder.Embed(r.Context(), req.Text)
	if err != nil {
		s.logger.Error("embed failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, struct {
		Success    bool      `json:"success"`
		Embedding  []float32 `json:"embedding"`
		Dimensions int       `json:"dimensions"`
	}{true, vec, len(vec)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{false, message})
}
