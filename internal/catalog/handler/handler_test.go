package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/chedeval/progeval/internal/catalog"
	"github.com/chedeval/progeval/internal/catalog/service"
)

func setup(t *testing.T, requireAuth gin.HandlerFunc) (*gin.Engine, *service.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := gin.New()
	svc := service.NewMemoryService()
	_, err := svc.Import(context.Background(), catalog.Rows{
		Programs: []catalog.AcademicProgram{
			{ID: "118", Code: "BSBA", Name: "BS BUSINESS ADMINISTRATION"},
			{ID: "181", Code: "BSIT", Name: "BS INFORMATION TECHNOLOGY"},
			{ID: "202", Code: "BSPSY", Name: "BS PSYCHOLOGY"},
			{ID: "44", Code: "ABPSY", Name: "BA PSYCHOLOGY"},
		},
		Documents: []catalog.RegulatoryDocument{
			{ID: "1", Number: "CMO No. 17, Series of 2017", Title: "BSBA", SeriesYear: 2017, ProgramIDs: []string{"118"}},
			{ID: "2", Number: "CMO No. 105, Series of 2017", Title: "BSIT", SeriesYear: 2017, ProgramIDs: []string{"181"}},
			{ID: "3", Number: "CMO No. 53, Series of 2007", Title: "Psychology", SeriesYear: 2007, ProgramIDs: []string{"202", "44"}},
		},
	})
	require.NoError(t, err)
	RegisterCatalogRoutes(g, svc, requireAuth)
	return g, svc
}

func do(g *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	g.ServeHTTP(w, req)
	return w
}

func TestPrograms_CRUD(t *testing.T) {
	g, _ := setup(t, nil)

	w := do(g, http.MethodGet, "/api/programs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []catalog.AcademicProgram
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 4)
	require.Equal(t, "BA PSYCHOLOGY", list[0].Name)

	w = do(g, http.MethodPost, "/api/programs", `{"code":"BSN"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(g, http.MethodPost, "/api/programs", `{"code":"BSN","name":"BS NURSING"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Success bool                    `json:"success"`
		Program catalog.AcademicProgram `json:"program"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.True(t, created.Success)
	require.NotEmpty(t, created.Program.ID)

	w = do(g, http.MethodPost, "/api/programs", `{"id":"`+created.Program.ID+`","code":"BSN","name":"BACHELOR OF SCIENCE IN NURSING"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(g, http.MethodPost, "/api/programs", `{"id":"missing","code":"X","name":"Y"}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = do(g, http.MethodDelete, "/api/programs", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(g, http.MethodDelete, "/api/programs?id="+created.Program.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(g, http.MethodDelete, "/api/programs?id="+created.Program.ID, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCMO_CRUD(t *testing.T) {
	g, _ := setup(t, nil)

	w := do(g, http.MethodGet, "/api/cmo", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []struct {
		ID       string                    `json:"id"`
		Series   int                       `json:"series"`
		Label    string                    `json:"label"`
		Programs []catalog.AcademicProgram `json:"programs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 3)
	require.Equal(t, 2007, list[2].Series)
	require.Len(t, list[2].Programs, 2)

	w = do(g, http.MethodPost, "/api/cmo", `{"number":"CMO No. 25","title":"BSCS"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(g, http.MethodPost, "/api/cmo", `{"number":"CMO No. 25","title":"BSCS","series":"2015","programId":"181"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		CMO catalog.RegulatoryDocument `json:"cmo"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, 2015, created.CMO.SeriesYear)
	require.Equal(t, []string{"181"}, []string(created.CMO.ProgramIDs))

	w = do(g, http.MethodPost, "/api/cmo", `{"id":"`+created.CMO.ID+`","number":"CMO No. 25","title":"BSCS","series":2016}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(g, http.MethodDelete, "/api/cmo?id="+created.CMO.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(g, http.MethodDelete, "/api/cmo", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProgramsForCMOs(t *testing.T) {
	g, _ := setup(t, nil)

	w := do(g, http.MethodPost, "/api/cmo/programs", `{"cmo_ids":["3","unknown"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			ProgramID   string `json:"programID"`
			ProgramName string `json:"programName"`
			Selected    int    `json:"selected"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "success", resp.Status)
	require.Len(t, resp.Data, 2)
	// program table order: name ascending
	require.Equal(t, "44", resp.Data[0].ProgramID)
	require.Equal(t, 1, resp.Data[0].Selected)

	w = do(g, http.MethodPost, "/api/cmo/programs", `{"cmo_ids":"3"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = do(g, http.MethodPost, "/api/cmo/programs", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCMOsForPrograms(t *testing.T) {
	g, _ := setup(t, nil)

	w := do(g, http.MethodPost, "/api/programs/cmos", `{"program_ids":["181"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"cmoLabel":"CMO No. 105, Series of 2017 - BSIT"`)
}

func TestMutationsRequireAuth(t *testing.T) {
	deny := func(c *gin.Context) { c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"}) }
	g, _ := setup(t, deny)

	require.Equal(t, http.StatusUnauthorized, do(g, http.MethodPost, "/api/programs", `{"code":"A","name":"B"}`).Code)
	require.Equal(t, http.StatusUnauthorized, do(g, http.MethodDelete, "/api/cmo?id=1", "").Code)
	require.Equal(t, http.StatusOK, do(g, http.MethodGet, "/api/cmo", "").Code)
}
