package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tagyourcity/backend/internal/export"
	"github.com/tagyourcity/backend/internal/model"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

type createResponse struct {
	Success      bool                  `json:"success"`
	SubmissionID string                `json:"submissionId"`
	Message      string                `json:"message"`
	Stats        model.SubmissionStats `json:"stats"`
}

type listResponse struct {
	Success     bool               `json:"success"`
	Count       int                `json:"count"`
	Submissions []model.Submission `json:"submissions"`
}

type detailResponse struct {
	Success        bool                  `json:"success"`
	Submission     model.Submission      `json:"submission"`
	Clusters       []model.Cluster       `json:"clusters"`
	GroundPolygons []model.GroundPolygon `json:"groundPolygons"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("api: write response", zap.Error(err))
	}
}

// Health reports service liveness and database reachability.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	now, err := s.store.Ping(r.Context())
	if err != nil {
		zap.L().Error("api: health check", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, healthResponse{
			Status: "unhealthy",
			Error:  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Database:  "connected",
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

// CreateSubmission ingests one tagging session and persists it atomically.
func (s *Server) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var req model.SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: err.Error()})
		return
	}

	if err := req.Validate(); err != nil {
		zap.L().Warn("api: submission rejected", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to save submission",
			Details: err.Error(),
		})
		return
	}

	// Geometry problems are diagnostic only; the payload is stored as sent.
	for i, gp := range req.GroundPolygons {
		if err := model.ProbeGeometry(gp.Geometry); err != nil {
			zap.L().Warn("api: suspect polygon geometry",
				zap.Int("index", i),
				zap.Error(err))
		}
	}

	sub := req.Normalize()
	id, err := s.store.CreateSubmission(r.Context(), sub)
	if err != nil {
		zap.L().Error("api: save submission", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to save submission",
			Details: err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{
		Success:      true,
		SubmissionID: id,
		Message:      "Submission saved successfully",
		Stats:        req.Stats(),
	})
}

// ListSubmissions returns recent submission summaries, newest first.
func (s *Server) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.ListSubmissions(r.Context(), 0)
	if err != nil {
		zap.L().Error("api: list submissions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch submissions"})
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Success:     true,
		Count:       len(subs),
		Submissions: subs,
	})
}

// GetSubmission returns one submission with its clusters and ground polygons.
func (s *Server) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	detail, err := s.store.GetSubmission(r.Context(), id)
	if err != nil {
		zap.L().Error("api: fetch submission", zap.String("submission_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch submission"})
		return
	}
	if detail == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Submission not found"})
		return
	}
	if detail.Clusters == nil {
		detail.Clusters = []model.Cluster{}
	}
	if detail.GroundPolygons == nil {
		detail.GroundPolygons = []model.GroundPolygon{}
	}
	writeJSON(w, http.StatusOK, detailResponse{
		Success:        true,
		Submission:     detail.Submission,
		Clusters:       detail.Clusters,
		GroundPolygons: detail.GroundPolygons,
	})
}

// ExportGeoJSON streams the complete dataset as a GeoJSON FeatureCollection
// download.
func (s *Server) ExportGeoJSON(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.ExportAll(r.Context())
	if err != nil {
		zap.L().Error("api: geojson export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to export GeoJSON",
			Details: err.Error(),
		})
		return
	}

	fc, err := export.BuildFeatureCollection(data, time.Now().UTC())
	if err != nil {
		zap.L().Error("api: geojson build", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to export GeoJSON",
			Details: err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Content-Disposition", `attachment; filename="tagyourcity_complete_export.geojson"`)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		zap.L().Error("api: write geojson", zap.Error(err))
	}
}

// ExportCSV streams the cluster summary table as a CSV download.
func (s *Server) ExportCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ExportClusters(r.Context())
	if err != nil {
		zap.L().Error("api: csv export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "Failed to export CSV",
			Details: err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="tagyourcity_export.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := export.WriteClustersCSV(w, rows); err != nil {
		zap.L().Error("api: write csv", zap.Error(err))
	}
}
