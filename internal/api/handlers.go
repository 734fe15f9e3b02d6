package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"snowbotium/internal/models"
	"snowbotium/internal/service/ai"
	"snowbotium/internal/service/ingest"
	"snowbotium/internal/storage"
	"snowbotium/internal/worker"
)

const (
	maxUploadBytes = 10 << 20 // 10 MB
	maxPromptBytes = 4 << 10
	healthTimeout  = 3 * time.Second
)

type WorkerManager interface {
	StartSession() *models.Session
	EnsureSession(sessionID string) *models.Session
	Session(sessionID string) (*models.Session, bool)
	Upload(ctx context.Context, req worker.UploadRequest) (*models.Document, error)
	Generate(ctx context.Context, req worker.GenerateRequest) (*worker.GenerateResult, error)
	History(ctx context.Context, sessionID string) ([]string, error)
	Stop(sessionID string)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler wires HTTP routes to the per-session workers.
type Handler struct {
	workers WorkerManager
	checks  map[string]Pinger
}

// NewHandler constructs a Handler instance. checks are probed by /healthz.
func NewHandler(workers WorkerManager, checks map[string]Pinger) *Handler {
	if checks == nil {
		checks = make(map[string]Pinger)
	}
	return &Handler{workers: workers, checks: checks}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.healthz)

	api := router.Group("/api")
	api.GET("/actions", h.listActions)
	api.POST("/sessions", h.startSession)

	sessionRoutes := api.Group("")
	sessionRoutes.Use(h.sessionMiddleware())
	sessionRoutes.GET("/sessions/current", h.currentSession)
	sessionRoutes.DELETE("/sessions/current", h.endSession)
	sessionRoutes.POST("/uploads", h.uploadDocument)
	sessionRoutes.POST("/actions/:key", h.runAction)
	sessionRoutes.POST("/prompts", h.runPrompt)
	sessionRoutes.GET("/responses", h.listResponses)
}

func (h *Handler) healthz(c *gin.Context) {
	status := http.StatusOK
	report := gin.H{}
	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		err := check.Ping(ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			report[name] = err.Error()
			continue
		}
		report[name] = "ok"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": report})
}

func (h *Handler) listActions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actions": models.Actions})
}

func (h *Handler) startSession(c *gin.Context) {
	if old := extractSessionID(c); old != "" {
		h.workers.Stop(old)
	}
	se := h.workers.StartSession()
	setSessionCookie(c, se.ID)
	c.Header(sessionHeaderName, se.ID)
	c.JSON(http.StatusCreated, gin.H{"session": se})
}

func (h *Handler) currentSession(c *gin.Context) {
	sessionID, _ := SessionIDFromContext(c)
	se, ok := h.workers.Session(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": se})
}

func (h *Handler) endSession(c *gin.Context) {
	sessionID, _ := SessionIDFromContext(c)
	h.workers.Stop(sessionID)
	clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) uploadDocument(c *gin.Context) {
	sessionID, _ := SessionIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+1<<20)
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	filename := filepath.Base(file.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only pdf documents are supported"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := io.ReadFull(f, buf)
	if contentType := http.DetectContentType(buf[:n]); contentType != "application/pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
		return
	}

	doc, err := h.workers.Upload(c.Request.Context(), worker.UploadRequest{
		SessionID: sessionID,
		FileName:  filename,
		Size:      file.Size,
		Body:      f,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"file_id":    doc.ID,
		"file_name":  doc.FileName,
		"pages":      doc.Pages,
		"size":       doc.Size,
		"characters": len([]rune(doc.Text)),
	})
}

func (h *Handler) runAction(c *gin.Context) {
	action, ok := models.LookupAction(c.Param("key"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
		return
	}
	h.generate(c, action)
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func (h *Handler) runPrompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}
	if len(prompt) > maxPromptBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt too long"})
		return
	}
	h.generate(c, models.CustomAction(prompt))
}

type responseItem struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

func (h *Handler) generate(c *gin.Context, action models.Action) {
	sessionID, _ := SessionIDFromContext(c)
	res, err := h.workers.Generate(c.Request.Context(), worker.GenerateRequest{
		SessionID: sessionID,
		Action:    action,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]responseItem, 0, len(res.Responses))
	for i, r := range res.Responses {
		items = append(items, responseItem{Label: action.ItemTitle(i), Content: r})
	}
	body := gin.H{
		"id":        res.ID,
		"action":    action.Key,
		"prompt":    action.Instruction,
		"heading":   action.Heading,
		"responses": items,
		"persisted": res.Persisted,
	}
	if res.StorageErr != nil {
		body["persist_error"] = res.StorageErr.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) listResponses(c *gin.Context) {
	sessionID, _ := SessionIDFromContext(c)
	responses, err := h.workers.History(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	body := gin.H{"responses": responses, "count": len(responses)}
	if len(responses) == 0 {
		body["message"] = "No responses found."
	}
	c.JSON(http.StatusOK, body)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ingest.ErrIngestion):
		status = http.StatusBadRequest
	case errors.Is(err, worker.ErrNoDocument), errors.Is(err, worker.ErrSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, worker.ErrSessionBusy):
		status = http.StatusTooManyRequests
	case errors.Is(err, ai.ErrGeneration):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, storage.ErrConnection):
		status = http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrStorage):
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
