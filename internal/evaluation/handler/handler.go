package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chedeval/progeval/internal/broadcast"
	"github.com/chedeval/progeval/internal/dbguard"
	"github.com/chedeval/progeval/internal/evaluation"
	"github.com/chedeval/progeval/internal/evaluation/service"
	"github.com/chedeval/progeval/pkg/logger"
	"github.com/chedeval/progeval/pkg/middleware"
)

// Options configures the evaluation routes. OptionalAuth attaches reviewer
// claims when a bearer token is sent; Live, when set, enables the websocket
// endpoint on channels named ChannelPrefix+refNo.
type Options struct {
	OptionalAuth  gin.HandlerFunc
	Live          broadcast.Subscriber
	ChannelPrefix string
}

// RegisterEvaluationRoutes mounts the record, response, checklist and live endpoints.
func RegisterEvaluationRoutes(r gin.IRouter, svc *service.Service, opts Options) {
	h := &handler{svc: svc, opts: opts}
	g := r.Group("")
	if opts.OptionalAuth != nil {
		g.Use(opts.OptionalAuth)
	}

	g.GET("/api/evaluation", h.getRecord)
	g.POST("/api/evaluation", h.saveRecord)
	g.GET("/api/evaluation/search", h.search)
	g.GET("/api/evaluation/responses", h.getResponses)
	g.POST("/api/evaluation/responses", h.saveResponses)
	g.GET("/api/evaluation/checklist", h.checklist)
	g.POST("/api/checklist", h.compile)
	g.POST("/api/evaluation/submit", h.submit)
	g.GET("/api/evaluation/submissions", h.submissions)
	if opts.Live != nil {
		g.GET("/api/evaluation/live", h.live)
	}
}

type handler struct {
	svc  *service.Service
	opts Options
}

func requireReviewer(c *gin.Context) bool {
	if _, ok := middleware.Reviewer(c); ok {
		return true
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	return false
}

// getRecord returns one record by refNo, or every record for reviewers.
func (h *handler) getRecord(c *gin.Context) {
	refNo := strings.TrimSpace(c.Query("refNo"))
	if refNo == "" {
		if !requireReviewer(c) {
			return
		}
		list, err := h.svc.List(c.Request.Context())
		if err != nil {
			writeError(c, err, "Failed to fetch evaluation records", "")
			return
		}
		c.JSON(http.StatusOK, list)
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), refNo)
	if err != nil {
		writeError(c, err, "Failed to fetch evaluation record", "Record not found")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// flexDate accepts RFC 3339 timestamps and plain dates from the intake form.
type flexDate struct{ time.Time }

func (d *flexDate) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return &time.ParseError{Layout: time.RFC3339, Value: s}
}

type recordRequest struct {
	RefNo            string   `json:"refNo"`
	PersonnelName    string   `json:"personnelName"`
	Position         string   `json:"position"`
	Email            string   `json:"email"`
	Institution      string   `json:"institution"`
	AcademicYear     string   `json:"academicYear"`
	SelectedCMOs     []string `json:"selectedCMOs"`
	SelectedPrograms []string `json:"selectedPrograms"`
	ORNumber         string   `json:"orNumber"`
	DateOfEvaluation flexDate `json:"dateOfEvaluation"`
}

func (req recordRequest) record() *evaluation.Record {
	rec := &evaluation.Record{
		RefNo:            req.RefNo,
		PersonnelName:    req.PersonnelName,
		Position:         req.Position,
		Email:            req.Email,
		Institution:      req.Institution,
		AcademicYear:     req.AcademicYear,
		SelectedCMOs:     req.SelectedCMOs,
		SelectedPrograms: req.SelectedPrograms,
		ORNumber:         req.ORNumber,
		DateOfEvaluation: req.DateOfEvaluation.Time,
	}
	if rec.SelectedCMOs == nil {
		rec.SelectedCMOs = []string{}
	}
	if rec.SelectedPrograms == nil {
		rec.SelectedPrograms = []string{}
	}
	return rec
}

func (h *handler) saveRecord(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	rec := req.record()
	created, err := h.svc.Upsert(c.Request.Context(), rec)
	if err != nil {
		writeError(c, err, "Failed to save evaluation record", "Record not found")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"success": true, "record": rec})
}

func (h *handler) search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Search query is required"})
		return
	}
	if !requireReviewer(c) {
		return
	}
	list, err := h.svc.Search(c.Request.Context(), q)
	if err != nil {
		writeError(c, err, "Failed to search evaluation records", "")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) getResponses(c *gin.Context) {
	refNo := strings.TrimSpace(c.Query("refNo"))
	if refNo == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Reference number is required"})
		return
	}
	m, err := h.svc.Responses(c.Request.Context(), refNo)
	if err != nil {
		writeError(c, err, "Failed to fetch evaluation responses", "Evaluation record not found")
		return
	}
	c.JSON(http.StatusOK, m)
}

type responsesRequest struct {
	RefNo         string                         `json:"refNo"`
	Responses     map[string]evaluation.Response `json:"responses"`
	PublishUpdate *bool                          `json:"publishUpdate"`
}

func (h *handler) saveResponses(c *gin.Context) {
	var req responsesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	_, reviewer := middleware.Reviewer(c)
	opts := service.SaveOptions{Reviewer: reviewer, Publish: req.PublishUpdate == nil || *req.PublishUpdate}
	if _, err := h.svc.SaveResponses(c.Request.Context(), req.RefNo, req.Responses, opts); err != nil {
		writeError(c, err, "Failed to save evaluation responses", "Evaluation record not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Evaluation responses saved"})
}

func (h *handler) checklist(c *gin.Context) {
	refNo := strings.TrimSpace(c.Query("refNo"))
	if refNo == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Reference number is required"})
		return
	}
	sections, err := h.svc.Checklist(c.Request.Context(), refNo)
	if err != nil {
		writeError(c, err, "Failed to compile checklist", "Evaluation record not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"refNo": refNo, "sections": sections})
}

func (h *handler) compile(c *gin.Context) {
	var req struct {
		CMOIDs []string `json:"cmoIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cmoIds must be an array"})
		return
	}
	sections, err := h.svc.Compile(c.Request.Context(), req.CMOIDs)
	if err != nil {
		writeError(c, err, "Failed to compile checklist", "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sections": sections})
}

func (h *handler) submit(c *gin.Context) {
	var req responsesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	email, reviewer := middleware.Reviewer(c)
	res, err := h.svc.Submit(c.Request.Context(), req.RefNo, req.Responses, reviewer, email)
	if err != nil {
		writeError(c, err, "Failed to submit evaluation", "Evaluation record not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "archived": res.Receipt.Archived, "receipt": res.Receipt})
}

func (h *handler) submissions(c *gin.Context) {
	refNo := strings.TrimSpace(c.Query("refNo"))
	if refNo == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Reference number is required"})
		return
	}
	list, err := h.svc.Submissions(c.Request.Context(), refNo)
	if err != nil {
		writeError(c, err, "Failed to list submissions", "Evaluation record not found")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) live(c *gin.Context) {
	refNo := strings.TrimSpace(c.Query("refNo"))
	if !evaluation.ValidRefNo(refNo) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Reference number is required"})
		return
	}
	channel := broadcast.ChannelKey(h.opts.ChannelPrefix, refNo)
	if err := broadcast.ServeLive(c.Writer, c.Request, h.opts.Live, channel); err != nil {
		logger.Debugf("live %s ended: %v", channel, err)
	}
}

func writeError(c *gin.Context, err error, msg, notFound string) {
	var verr *evaluation.ValidationError
	switch {
	case errors.As(err, &verr):
		body := gin.H{"error": "Missing required fields", "field": verr.Field}
		if verr.Msg != "" {
			body["error"] = verr.Msg
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, evaluation.ErrNotFound) && notFound != "":
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case errors.Is(err, dbguard.ErrTimeout):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "The database took too long to respond. Please try again."})
	default:
		logger.Errorf("%s: %v", msg, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
