package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chedeval/progeval/internal/catalog"
	"github.com/chedeval/progeval/internal/dbguard"
	"github.com/chedeval/progeval/internal/evaluation"
	"github.com/chedeval/progeval/internal/intake"
	"github.com/chedeval/progeval/pkg/logger"
)

type CatalogSource interface {
	Snapshot(ctx context.Context) (*catalog.Catalog, error)
}

// RecordSaver persists the record built from a completed form.
type RecordSaver interface {
	Upsert(ctx context.Context, rec *evaluation.Record) (created bool, err error)
}

// RegisterIntakeRoutes mounts the selection reconciler and the proceed step.
func RegisterIntakeRoutes(r gin.IRouter, cat CatalogSource, records RecordSaver) {
	h := &handler{cat: cat, records: records}
	r.POST("/api/intake/selection", h.selection)
	r.POST("/api/intake/proceed", h.proceed)
}

type handler struct {
	cat     CatalogSource
	records RecordSaver
}

type selectionRequest struct {
	SelectedCMOs     []string `json:"selectedCMOs"`
	SelectedPrograms []string `json:"selectedPrograms"`
	Changed          string   `json:"changed" binding:"required,oneof=cmo program apply"`
}

type programOption struct {
	ProgramID   string `json:"programID"`
	ProgramName string `json:"programName"`
}

func (h *handler) selection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": `changed must be "cmo", "program" or "apply"`})
		return
	}
	cat, err := h.cat.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err, "Failed to load the catalog")
		return
	}

	state := intake.FormState{SelectedCMOs: req.SelectedCMOs, SelectedPrograms: req.SelectedPrograms}
	state.SuggestedPrograms = cat.ProgramsForDocuments(state.SelectedCMOs)
	switch req.Changed {
	case "cmo":
		state = intake.Reduce(cat, state, intake.Event{Kind: intake.DocumentsChanged, IDs: req.SelectedCMOs})
	case "program":
		state = intake.Reduce(cat, state, intake.Event{Kind: intake.ProgramsChanged, IDs: req.SelectedPrograms})
	case "apply":
		state = intake.Reduce(cat, state, intake.Event{Kind: intake.ApplySuggested})
	}

	options := make([]programOption, 0, len(state.SuggestedPrograms))
	for _, id := range state.SuggestedPrograms {
		name := id
		if p, ok := cat.Program(id); ok {
			name = p.Name
		}
		options = append(options, programOption{ProgramID: id, ProgramName: name})
	}
	c.JSON(http.StatusOK, gin.H{
		"selectedCMOs":      state.SelectedCMOs,
		"selectedPrograms":  state.SelectedPrograms,
		"suggestedPrograms": options,
	})
}

// proceed validates the finished form and creates or updates its record.
func (h *handler) proceed(c *gin.Context) {
	var req struct {
		intake.FormState
		RefNo string `json:"refNo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := intake.Validate(req.FormState); err != nil {
		writeError(c, err, "")
		return
	}

	rec := req.FormState.ToRecord(req.RefNo)
	created, err := h.records.Upsert(c.Request.Context(), rec)
	if err != nil {
		writeError(c, err, "Failed to save evaluation record")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	logger.With("refNo", rec.RefNo, "created", created).Infow("intake completed")
	c.JSON(status, gin.H{"success": true, "refNo": rec.RefNo, "record": rec})
}

func writeError(c *gin.Context, err error, msg string) {
	var verr *evaluation.ValidationError
	switch {
	case errors.As(err, &verr):
		body := gin.H{"error": "Missing required fields", "field": verr.Field}
		if verr.Msg != "" {
			body["error"] = verr.Msg
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, dbguard.ErrTimeout):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "The database took too long to respond. Please try again."})
	default:
		logger.Errorf("%s: %v", msg, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
