package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/bukken/internal/bucket"
	"github.com/hyperjump/bukken/internal/models"
	"github.com/hyperjump/bukken/internal/tabular"
)

// multipartSlack covers multipart framing overhead so a payload exactly at
// the configured ceiling is not cut off by the body reader before the parser
// can accept it.
const multipartSlack = 1 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Upload.MaxUploadBytes+multipartSlack)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "multipart form with a \"file\" part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	s.logger.Debug("upload request",
		zap.String("filename", header.Filename),
		zap.Int("size", len(data)))

	result, err := s.ingest.Ingest(r.Context(), header.Filename, data)
	if err != nil {
		s.respondIngestError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, result)
}

// respondIngestError maps pipeline errors to HTTP statuses: unsupported
// format 400, oversized payload 413, unparseable file 422, anything else 500.
func (s *Server) respondIngestError(w http.ResponseWriter, err error) {
	var parseErr *tabular.ParseError
	switch {
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		s.respondError(w, http.StatusBadRequest, "unsupported file format: use csv, xls, or xlsx")
	case errors.Is(err, tabular.ErrPayloadTooLarge):
		s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
	case errors.As(err, &parseErr):
		s.respondError(w, http.StatusUnprocessableEntity, parseErr.Error())
	default:
		s.logger.Error("ingest failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r, s.config.Search.DefaultLimit, s.config.Search.MaxLimit)
	uploads, err := s.store.ListUploads(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list uploads failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"uploads": uploads})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if query.Limit <= 0 {
		query.Limit = s.config.Search.DefaultLimit
	}
	if query.Limit > s.config.Search.MaxLimit {
		query.Limit = s.config.Search.MaxLimit
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.index.Search(r.Context(), &query)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetUnit(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	unit, err := s.store.GetUnit(r.Context(), key)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "unit not found")
		return
	}
	s.respondJSON(w, http.StatusOK, unit)
}

func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r, s.config.Search.DefaultLimit, s.config.Search.MaxLimit)
	units, err := s.store.ListUnits(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list units failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.store.CountUnits(r.Context())
	if err != nil {
		s.logger.Error("count units failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"units": units, "total": total})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unitCount, err := s.store.CountUnits(ctx)
	if err != nil {
		s.logger.Error("status: count units failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	docCount, err := s.index.DocCount()
	if err != nil {
		s.logger.Error("status: doc count failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"units":        unitCount,
		"indexed_docs": docCount,
	}

	configInfo := map[string]interface{}{
		"storage_driver":   s.config.Storage.Driver,
		"bleve_index_path": s.config.Storage.BleveIndexPath,
		"bucket_dir":       s.config.Storage.BucketDir,
		"key_field":        s.config.Upload.KeyField,
		"header_policy":    s.config.Upload.HeaderPolicy,
		"max_upload_bytes": s.config.Upload.MaxUploadBytes,
	}
	if len(s.config.Watch.Directories) > 0 {
		configInfo["watch_directories"] = s.config.Watch.Directories
	}

	paths := []string{s.config.Storage.BleveIndexPath, s.config.Storage.BucketDir}
	if s.config.Storage.Driver == "sqlite3" {
		paths = append(paths, s.config.Storage.DSN)
	}
	if diskBytes, err := bucket.DiskUsageBytes(paths...); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pagination reads offset and limit query parameters, clamping limit to the
// configured maximum.
func pagination(r *http.Request, defaultLimit, maxLimit int) (offset, limit int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	return offset, limit
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
