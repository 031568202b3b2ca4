package server

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/brunobiangulo/docqa"
	"github.com/brunobiangulo/docqa/store"
)

// AskRequest is the request body for POST /api/qa/ask.
type AskRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// AskResponse is the response body for POST /api/qa/ask.
type AskResponse struct {
	Success  bool              `json:"success"`
	Question string            `json:"question"`
	Answer   string            `json:"answer"`
	Sources  []store.SourceRef `json:"sources"`
}

// HistoryResponse is the response body for GET /api/qa/history.
type HistoryResponse struct {
	Success bool                   `json:"success"`
	History []store.QuestionRecord `json:"history"`
}

// IngestRequest is the request body for POST /api/documents.
type IngestRequest struct {
	Path string `json:"path"`
}

// IngestResponse is the response body for POST /api/documents.
type IngestResponse struct {
	Success  bool                `json:"success"`
	Document *docqa.IngestResult `json:"document"`
}

// DocumentsResponse is the response body for GET /api/documents.
type DocumentsResponse struct {
	Success   bool             `json:"success"`
	Documents []store.Document `json:"documents"`
}

// DocumentResponse is the response body for GET /api/documents/:id.
type DocumentResponse struct {
	Success  bool            `json:"success"`
	Document *store.Document `json:"document"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string       `json:"status"`
	Stats  *store.Stats `json:"stats,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	stats, err := s.engine.Stats(c.Request().Context())
	if err != nil {
		slog.Warn("health: stats unavailable", "error", err)
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Stats: stats})
}

// POST /api/qa/ask
func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON")
	}

	// Bound parameters.
	var opts []docqa.AskOption
	if req.TopK > 0 && req.TopK <= 100 {
		opts = append(opts, docqa.WithTopK(req.TopK))
	}

	ans, err := s.engine.Ask(c.Request().Context(), req.Question, opts...)
	if errors.Is(err, docqa.ErrValidation) {
		return echo.NewHTTPError(http.StatusBadRequest, "Question is required")
	}
	if err != nil {
		slog.Error("ask error", "question", req.Question, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process question").SetInternal(err)
	}

	return c.JSON(http.StatusOK, AskResponse{
		Success:  true,
		Question: req.Question,
		Answer:   ans.Text,
		Sources:  ans.Sources,
	})
}

// GET /api/qa/history?limit=N
func (s *Server) handleHistory(c echo.Context) error {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = store.DefaultHistoryLimit
	}

	history, err := s.engine.History(c.Request().Context(), limit)
	if err != nil {
		slog.Error("history error", "limit", limit, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load history").SetInternal(err)
	}
	if history == nil {
		history = []store.QuestionRecord{}
	}
	return c.JSON(http.StatusOK, HistoryResponse{Success: true, History: history})
}

// POST /api/documents
func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON")
	}
	if req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}

	// Only existing regular files are accepted.
	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid path")
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		return echo.NewHTTPError(http.StatusBadRequest, "path must be an existing file")
	}

	res, err := s.engine.Ingest(c.Request().Context(), absPath)
	if errors.Is(err, docqa.ErrUnsupportedFormat) {
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported document format")
	}
	if err != nil {
		slog.Error("ingest error", "path", absPath, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, IngestResponse{Success: true, Document: res})
}

// GET /api/documents
func (s *Server) handleListDocuments(c echo.Context) error {
	docs, err := s.engine.ListDocuments(c.Request().Context())
	if err != nil {
		slog.Error("list documents error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list documents").SetInternal(err)
	}
	if docs == nil {
		docs = []store.Document{}
	}
	return c.JSON(http.StatusOK, DocumentsResponse{Success: true, Documents: docs})
}

// GET /api/documents/:id
func (s *Server) handleGetDocument(c echo.Context) error {
	doc, err := s.engine.GetDocument(c.Request().Context(), c.Param("id"))
	if errors.Is(err, docqa.ErrDocumentNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		slog.Error("get document error", "document_id", c.Param("id"), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load document").SetInternal(err)
	}
	return c.JSON(http.StatusOK, DocumentResponse{Success: true, Document: doc})
}

// DELETE /api/documents/:id
func (s *Server) handleDeleteDocument(c echo.Context) error {
	id := c.Param("id")
	err := s.engine.DeleteDocument(c.Request().Context(), id)
	if errors.Is(err, docqa.ErrDocumentNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err != nil {
		slog.Error("delete error", "document_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "delete failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "id": id})
}

// errorHandler renders every error as {success:false, error}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, ErrorResponse{Success: false, Error: msg})
	}
	if err != nil {
		slog.Error("writing error response", "error", err)
	}
}
