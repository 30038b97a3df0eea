package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/chedeval/progeval/internal/catalog"
	"github.com/chedeval/progeval/internal/catalog/service"
	"github.com/chedeval/progeval/internal/dbguard"
	"github.com/chedeval/progeval/pkg/logger"
)

// RegisterCatalogRoutes mounts the program and CMO endpoints. requireAuth, when
// non-nil, guards every mutation.
func RegisterCatalogRoutes(r gin.IRouter, svc *service.Service, requireAuth gin.HandlerFunc) {
	h := &handler{svc: svc}
	guarded := func(next gin.HandlerFunc) []gin.HandlerFunc {
		if requireAuth == nil {
			return []gin.HandlerFunc{next}
		}
		return []gin.HandlerFunc{requireAuth, next}
	}

	r.GET("/api/programs", h.listPrograms)
	r.POST("/api/programs", guarded(h.saveProgram)...)
	r.DELETE("/api/programs", guarded(h.deleteProgram)...)

	r.GET("/api/cmo", h.listCMOs)
	r.POST("/api/cmo", guarded(h.saveCMO)...)
	r.DELETE("/api/cmo", guarded(h.deleteCMO)...)

	r.POST("/api/cmo/programs", h.programsForCMOs)
	r.POST("/api/programs/cmos", h.cmosForPrograms)
}

type handler struct {
	svc *service.Service
}

func (h *handler) listPrograms(c *gin.Context) {
	list, err := h.svc.ListPrograms(c.Request.Context())
	if err != nil {
		writeError(c, err, "Failed to fetch programs")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) saveProgram(c *gin.Context) {
	var req struct {
		ID   string `json:"id"`
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	p := &catalog.AcademicProgram{ID: req.ID, Code: req.Code, Name: req.Name}
	created, err := h.svc.SaveProgram(c.Request.Context(), p)
	if err != nil {
		writeError(c, err, "Failed to save program")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"success": true, "program": p})
}

func (h *handler) deleteProgram(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing program ID"})
		return
	}
	if err := h.svc.DeleteProgram(c.Request.Context(), id); err != nil {
		writeError(c, err, "Failed to delete program")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type cmoView struct {
	catalog.RegulatoryDocument
	Label    string                    `json:"label"`
	Programs []catalog.AcademicProgram `json:"programs"`
}

func (h *handler) listCMOs(c *gin.Context) {
	ctx := c.Request.Context()
	docs, err := h.svc.ListDocuments(ctx)
	if err != nil {
		writeError(c, err, "Failed to fetch CMOs")
		return
	}
	progs, err := h.svc.ListPrograms(ctx)
	if err != nil {
		writeError(c, err, "Failed to fetch CMOs")
		return
	}
	byID := make(map[string]catalog.AcademicProgram, len(progs))
	for _, p := range progs {
		byID[p.ID] = p
	}
	out := make([]cmoView, 0, len(docs))
	for _, d := range docs {
		v := cmoView{RegulatoryDocument: d, Label: d.Label(), Programs: []catalog.AcademicProgram{}}
		for _, pid := range d.ProgramIDs {
			if p, ok := byID[pid]; ok {
				v.Programs = append(v.Programs, p)
			}
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, out)
}

// flexInt accepts 2017 or "2017"; the admin form posts the series as text.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

func (h *handler) saveCMO(c *gin.Context) {
	var req struct {
		ID         string   `json:"id"`
		Number     string   `json:"number"`
		Title      string   `json:"title"`
		Series     flexInt  `json:"series"`
		ProgramID  string   `json:"programId"`
		ProgramIDs []string `json:"programIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	ids := req.ProgramIDs
	if req.ProgramID != "" {
		ids = append([]string{req.ProgramID}, ids...)
	}
	d := &catalog.RegulatoryDocument{ID: req.ID, Number: req.Number, Title: req.Title, SeriesYear: int(req.Series), ProgramIDs: ids}
	created, err := h.svc.SaveDocument(c.Request.Context(), d)
	if err != nil {
		writeError(c, err, "Failed to save CMO")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"success": true, "cmo": d})
}

func (h *handler) deleteCMO(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing CMO ID"})
		return
	}
	if err := h.svc.DeleteDocument(c.Request.Context(), id); err != nil {
		writeError(c, err, "Failed to delete CMO")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handler) programsForCMOs(c *gin.Context) {
	var req struct {
		CMOIDs json.RawMessage `json:"cmo_ids"`
	}
	var ids []string
	if err := c.ShouldBindJSON(&req); err != nil || json.Unmarshal(req.CMOIDs, &ids) != nil || ids == nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid CMO IDs"})
		return
	}
	progs, err := h.svc.ProgramsForDocuments(c.Request.Context(), ids)
	if err != nil {
		logger.Errorf("resolve programs for %v: %v", ids, err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Server error"})
		return
	}
	data := make([]gin.H, 0, len(progs))
	for _, p := range progs {
		data = append(data, gin.H{"programID": p.ID, "programName": p.Name, "selected": 1})
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data})
}

func (h *handler) cmosForPrograms(c *gin.Context) {
	var req struct {
		ProgramIDs json.RawMessage `json:"program_ids"`
	}
	var ids []string
	if err := c.ShouldBindJSON(&req); err != nil || json.Unmarshal(req.ProgramIDs, &ids) != nil || ids == nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid program IDs"})
		return
	}
	docs, err := h.svc.DocumentsForPrograms(c.Request.Context(), ids)
	if err != nil {
		logger.Errorf("resolve cmos for %v: %v", ids, err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Server error"})
		return
	}
	data := make([]gin.H, 0, len(docs))
	for _, d := range docs {
		data = append(data, gin.H{"cmoID": d.ID, "cmoLabel": d.Label(), "selected": 1})
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data})
}

func writeError(c *gin.Context, err error, msg string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields", "field": verr.Field})
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, dbguard.ErrTimeout):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "The database took too long to respond. Please try again."})
	default:
		logger.Errorf("%s: %v", msg, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
