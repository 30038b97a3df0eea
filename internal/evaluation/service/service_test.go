package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chedeval/progeval/internal/broadcast"
	"github.com/chedeval/progeval/internal/catalog"
	"github.com/chedeval/progeval/internal/evaluation"
	"github.com/chedeval/progeval/internal/evaluation/repository"
	"github.com/chedeval/progeval/internal/storage"
	"github.com/chedeval/progeval/internal/submissions"
)

type staticCatalog struct{ c *catalog.Catalog }

func (s staticCatalog) Snapshot(context.Context) (*catalog.Catalog, error) { return s.c, nil }

func fixtureCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, rejected := catalog.Build(catalog.Rows{
		Programs: []catalog.AcademicProgram{{ID: "P1", Code: "BSIT", Name: "Information Technology"}},
		Documents: []catalog.RegulatoryDocument{
			{ID: "D1", Number: "CMO No. 25", Title: "BSIT", SeriesYear: 2015, ProgramIDs: []string{"P1"}},
		},
		Sections: []catalog.Section{{ID: "D1-s1", DocumentID: "D1", Title: "Faculty", SortOrder: 1}},
		Items: []catalog.RequirementItem{
			{ID: "R1", DocumentID: "D1", SectionID: "D1-s1", Description: "Full-time faculty", SortOrder: 1},
			{ID: "R2", DocumentID: "D1", SectionID: "D1-s1", Description: "Faculty load", SortOrder: 2},
		},
	})
	require.Empty(t, rejected)
	return c
}

type fixture struct {
	svc      *Service
	hub      *broadcast.Hub
	archive  *storage.MemoryArchive
	receipts *submissions.MemoryStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		hub:      broadcast.NewHub(),
		archive:  storage.NewMemoryArchive(),
		receipts: submissions.NewMemoryStore(),
	}
	f.svc = New(Deps{
		Repo:     repository.NewMemoryRepo(),
		Catalog:  staticCatalog{fixtureCatalog(t)},
		Notifier: broadcast.NewNotifier(f.hub, "evaluation-"),
		Archive:  f.archive,
		Receipts: f.receipts,
	}, Options{})
	return f
}

func record(refNo string) *evaluation.Record {
	return &evaluation.Record{
		RefNo:         refNo,
		PersonnelName: "Maria Santos",
		Position:      "Program Chair",
		Email:         "maria@example.edu",
		Institution:   "Northern College",
		AcademicYear:  "2024-2025",
		SelectedCMOs:  []string{"D1", "D1"},
	}
}

func TestUpsert_CreateThenUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := record("ABC123")
	created, err := f.svc.Upsert(ctx, rec)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, rec.ID)
	require.False(t, rec.DateOfEvaluation.IsZero())
	require.Equal(t, []string{"D1"}, []string(rec.SelectedCMOs))

	again := record("ABC123")
	again.Institution = "Southern College"
	created, err = f.svc.Upsert(ctx, again)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, rec.ID, again.ID)

	got, err := f.svc.Get(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, "Southern College", got.Institution)
}

func TestUpsert_MissingFields(t *testing.T) {
	f := newFixture(t)
	rec := record("ABC123")
	rec.Email = "  "
	_, err := f.svc.Upsert(context.Background(), rec)
	var verr *evaluation.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "email", verr.Field)
}

func TestUpsert_GeneratesRefNoAndRetriesCollisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Upsert(ctx, record("TAKEN00001"))
	require.NoError(t, err)

	issued := []string{"TAKEN00001", "TAKEN00001", "FRESH00001"}
	f.svc.newRefNo = func() (string, error) {
		next := issued[0]
		issued = issued[1:]
		return next, nil
	}
	rec := record("")
	created, err := f.svc.Upsert(ctx, rec)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "FRESH00001", rec.RefNo)
}

func TestUpsert_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Upsert(ctx, record("TAKEN00001"))
	require.NoError(t, err)

	calls := 0
	f.svc.newRefNo = func() (string, error) {
		calls++
		return "TAKEN00001", nil
	}
	_, err = f.svc.Upsert(ctx, record(""))
	require.ErrorIs(t, err, evaluation.ErrRefNoTaken)
	require.Equal(t, refNoAttempts, calls)
}

func TestUpsert_RejectsMalformedRefNo(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Upsert(context.Background(), record("ABC-123"))
	var verr *evaluation.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "refNo", verr.Field)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Upsert(ctx, record("ABC123"))
	require.NoError(t, err)

	_, err = f.svc.Search(ctx, "   ")
	var verr *evaluation.ValidationError
	require.ErrorAs(t, err, &verr)

	got, err := f.svc.Search(ctx, " NORTHERN ")
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = f.svc.Search(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSaveResponses_FullReplaceAndBroadcast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Upsert(ctx, record("ABC123"))
	require.NoError(t, err)

	sub, err := f.hub.Subscribe(ctx, "evaluation-ABC123")
	require.NoError(t, err)
	defer sub.Close()

	_, err = f.svc.SaveResponses(ctx, "ABC123", map[string]evaluation.Response{
		"R1": {ActualSituation: "Twelve full-time faculty", HEICompliance: "complied"},
		"R2": {ActualSituation: "Within limits"},
	}, SaveOptions{Reviewer: true, Publish: true})
	require.NoError(t, err)

	saved, err := f.svc.SaveResponses(ctx, "ABC123", map[string]evaluation.Response{
		"R2": {ActualSituation: "Revised", HEICompliance: "Not Complied"},
	}, SaveOptions{Reviewer: true, Publish: true})
	require.NoError(t, err)
	require.Len(t, saved, 1)

	stored, err := f.svc.Responses(ctx, "ABC123")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, evaluation.NotComplied, stored["R2"].HEICompliance)

	var last broadcast.Message
	for i := 0; i < 2; i++ {
		select {
		case last = <-sub.Messages():
		case <-time.After(2 * time.Second):
			t.Fatal("no broadcast")
		}
	}
	require.Equal(t, broadcast.EventResponseUpdated, last.Event)
	var payload map[string]evaluation.Response
	require.NoError(t, json.Unmarshal(last.Data, &payload))
	require.Equal(t, "Revised", payload["R2"].ActualSituation)
	require.NotContains(t, payload, "R1")
}

func TestSaveResponses_NoPublishWhenDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Upsert(ctx, record("ABC123"))
	require.NoError(t, err)
	sub, err := f.hub.Subscribe(ctx, "evaluation-ABC123")
	require.NoError(t, err)
	defer sub.Close()

	_, err = f.svc.SaveResponses(ctx, "ABC123", map[string]evaluation.Response{"R1": {}}, SaveOptions{Reviewer: true})
	require.NoError(t, err)
	select {
	case m := <-sub.Messages():
		t.Fatalf("unexpected broadcast %+v", m)
	default:
	}
}

func TestSaveResponses_NonReviewerKeepsCHEDFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Upsert(ctx, record("ABC123"))
	require.NoError(t, err)

	_, err = f.svc.SaveResponses(ctx, "ABC123", map[string]evaluation.Response{
		"R1": {HEICompliance: "Complied", CHEDCompliance: "Not Complied", LinkAccessible: "No", CHEDRemarks: "Link broken"},
	}, SaveOptions{Reviewer: true})
	require.NoError(t, err)

	_, err = f.svc.SaveResponses(ctx, "ABC123", map[string]evaluation.Response{
		"R1": {HEICompliance: "Complied", CHEDCompliance: "Complied", LinkAccessible: "Yes", CHEDRemarks: ""},
		"R2": {CHEDCompliance: "Complied"},
	}, SaveOptions{})
	require.NoError(t, err)

	stored, err := f.svc.Responses(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, evaluation.NotComplied, stored["R1"].CHEDCompliance)
	require.Equal(t, evaluation.AccessNo, stored["R1"].LinkAccessible)
	require.Equal(t, "Link broken", stored["R1"].CHEDRemarks)
	require.Equal(t, evaluation.ComplianceUnset, stored["R2"].CHEDCompliance)
}

func TestSaveResponses_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveResponses(ctx, "", nil, SaveOptions{})
	var verr *evaluation.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = f.svc.SaveResponses(ctx, "MISSING", map[string]evaluation.Response{}, SaveOptions{Reviewer: true})
	require.ErrorIs(t, err, evaluation.ErrNotFound)

	_, err = f.svc.Upsert(ctx, record("ABC123"))
	require.NoError(t, err)
	_, err = f.svc.SaveResponses(ctx, "ABC123", map[string]evaluation.Response{"R1": {HEICompliance: "maybe"}}, SaveOptions{Reviewer: true})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "hei_compliance", verr.Field)
}

func TestChecklistAndCompile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Upsert(ctx, record("ABC123"))
	require.NoError(t, err)

	sections, err := f.svc.Checklist(ctx, "ABC123")
	require.NoError(t, err)
	require.Len(t, sections, 1)
	require.Equal(t, "Faculty", sections[0].Title)
	require.Len(t, sections[0].Items, 2)

	_, err = f.svc.Checklist(ctx, "MISSING")
	require.ErrorIs(t, err, evaluation.ErrNotFound)

	sections, err = f.svc.Compile(ctx, []string{"unknown"})
	require.NoError(t, err)
	require.Empty(t, sections)
}

func TestSubmit_ArchivesAndRecordsReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Upsert(ctx, record("ABC123"))
	require.NoError(t, err)
	f.svc.now = func() time.Time { return time.Date(2024, 8, 1, 9, 30, 0, 0, time.UTC) }

	res, err := f.svc.Submit(ctx, "ABC123", map[string]evaluation.Response{
		"R1": {ActualSituation: "done", HEICompliance: "Complied"},
		"R2": {},
	}, true, "reviewer@ched.gov.ph")
	require.NoError(t, err)
	require.True(t, res.Receipt.Archived)
	require.Equal(t, 2, res.Receipt.ItemCount)
	require.Equal(t, 1, res.Receipt.Answered)
	require.Equal(t, "reviewer@ched.gov.ph", res.Receipt.Reviewer)
	require.True(t, strings.HasPrefix(res.Receipt.ObjectKey, "submissions/ABC123/20240801T093000"))

	body, ok := f.archive.Object(res.Receipt.ObjectKey)
	require.True(t, ok)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	require.Equal(t, "ABC123", snap.Record.RefNo)
	require.Len(t, snap.Checklist, 1)

	list, err := f.svc.Submissions(ctx, "ABC123")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotEmpty(t, list[0].URL)
}

func TestSubmit_ArchiveFailureKeepsSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Upsert(ctx, record("ABC123"))
	require.NoError(t, err)
	f.archive.Err = errors.New("bucket unavailable")

	res, err := f.svc.Submit(ctx, "ABC123", map[string]evaluation.Response{"R1": {ActualSituation: "x"}}, true, "")
	require.NoError(t, err)
	require.False(t, res.Receipt.Archived)
	require.Empty(t, res.Receipt.ObjectKey)

	stored, err := f.svc.Responses(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, "x", stored["R1"].ActualSituation)

	list, err := f.svc.Submissions(ctx, "ABC123")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Empty(t, list[0].URL)
}

func TestSubmissions_UnknownRecord(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submissions(context.Background(), "MISSING")
	require.ErrorIs(t, err, evaluation.ErrNotFound)
}
