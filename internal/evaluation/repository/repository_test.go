package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chedeval/progeval/internal/database"
	"github.com/chedeval/progeval/internal/evaluation"
)

func repos(t *testing.T) map[string]Repository {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	g := NewGormRepo(db)
	require.NoError(t, g.Migrate(context.Background()))
	return map[string]Repository{"memory": NewMemoryRepo(), "gorm": g}
}

func record(id, refNo, name string) *evaluation.Record {
	return &evaluation.Record{
		ID:            id,
		RefNo:         refNo,
		PersonnelName: name,
		Position:      "Registrar",
		Email:         name + "@hei.edu.ph",
		Institution:   "Tarlac State University",
		AcademicYear:  "2024-2025",
		SelectedCMOs:  []string{"1"},
	}
}

func TestRepository_CreateGetUpdate(t *testing.T) {
	for name, r := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, r.Create(ctx, record("id-1", "ABC123", "maria")))
			require.ErrorIs(t, r.Create(ctx, record("id-2", "ABC123", "jose")), evaluation.ErrRefNoTaken)

			got, err := r.Get(ctx, "ABC123")
			require.NoError(t, err)
			require.Equal(t, "id-1", got.ID)
			require.Equal(t, []string{"1"}, []string(got.SelectedCMOs))
			require.Empty(t, got.SelectedPrograms)

			upd := record("", "ABC123", "maria")
			upd.Institution = "Bulacan State University"
			upd.SelectedPrograms = []string{"118"}
			require.NoError(t, r.Update(ctx, upd))
			require.Equal(t, "id-1", upd.ID)

			got, err = r.Get(ctx, "ABC123")
			require.NoError(t, err)
			require.Equal(t, "Bulacan State University", got.Institution)
			require.Equal(t, []string{"118"}, []string(got.SelectedPrograms))

			_, err = r.Get(ctx, "nope")
			require.ErrorIs(t, err, evaluation.ErrNotFound)
			require.ErrorIs(t, r.Update(ctx, record("", "nope", "x")), evaluation.ErrNotFound)
		})
	}
}

func TestRepository_ReplaceResponsesIsFullReplace(t *testing.T) {
	for name, r := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, r.Create(ctx, record("id-1", "ABC123", "maria")))

			first := evaluation.ResponseMap{
				"itemX": {ActualSituation: "<p>done</p>", HEICompliance: evaluation.Complied},
				"itemZ": {GoogleLink: "https://drive.example/z"},
				"itemW": {},
			}
			require.NoError(t, r.ReplaceResponses(ctx, "ABC123", first))
			got, err := r.Responses(ctx, "ABC123")
			require.NoError(t, err)
			require.Len(t, got, 3)
			require.Equal(t, evaluation.Complied, got["itemX"].HEICompliance)
			require.Equal(t, "itemX", got["itemX"].RequirementID)

			require.NoError(t, r.ReplaceResponses(ctx, "ABC123", evaluation.ResponseMap{"itemY": {CHEDRemarks: "ok"}}))
			got, err = r.Responses(ctx, "ABC123")
			require.NoError(t, err)
			require.Len(t, got, 1)
			require.Equal(t, "ok", got["itemY"].CHEDRemarks)

			require.NoError(t, r.ReplaceResponses(ctx, "ABC123", evaluation.ResponseMap{}))
			got, err = r.Responses(ctx, "ABC123")
			require.NoError(t, err)
			require.Empty(t, got)

			require.ErrorIs(t, r.ReplaceResponses(ctx, "missing", first), evaluation.ErrNotFound)
			_, err = r.Responses(ctx, "missing")
			require.ErrorIs(t, err, evaluation.ErrNotFound)
		})
	}
}

func TestRepository_ResponsesScopedToRecord(t *testing.T) {
	for name, r := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, r.Create(ctx, record("id-1", "AAA", "a")))
			require.NoError(t, r.Create(ctx, record("id-2", "BBB", "b")))
			require.NoError(t, r.ReplaceResponses(ctx, "AAA", evaluation.ResponseMap{"R1": {GoogleLink: "a"}}))
			require.NoError(t, r.ReplaceResponses(ctx, "BBB", evaluation.ResponseMap{"R1": {GoogleLink: "b"}}))

			a, err := r.Responses(ctx, "AAA")
			require.NoError(t, err)
			require.Equal(t, "a", a["R1"].GoogleLink)
			b, err := r.Responses(ctx, "BBB")
			require.NoError(t, err)
			require.Equal(t, "b", b["R1"].GoogleLink)
		})
	}
}

func TestRepository_SearchAndList(t *testing.T) {
	for name, r := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, r.Create(ctx, record("id-1", "Q1w2E3r4T5", "Maria Santos")))
			time.Sleep(5 * time.Millisecond)
			require.NoError(t, r.Create(ctx, record("id-2", "Z9x8C7v6B5", "Jose Rizal")))
			time.Sleep(5 * time.Millisecond)
			other := record("id-3", "K1k2K3k4K5", "Andres")
			other.Institution = "Mapua"
			other.Email = "andres@mapua.edu.ph"
			require.NoError(t, r.Create(ctx, other))

			list, err := r.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 3)
			require.Equal(t, "K1k2K3k4K5", list[0].RefNo)

			hits, err := r.Search(ctx, "tarlac", SearchLimit)
			require.NoError(t, err)
			require.Len(t, hits, 2)
			require.Equal(t, "Z9x8C7v6B5", hits[0].RefNo)

			hits, err = r.Search(ctx, "q1w2", SearchLimit)
			require.NoError(t, err)
			require.Len(t, hits, 1)

			hits, err = r.Search(ctx, "mapua.edu", SearchLimit)
			require.NoError(t, err)
			require.Len(t, hits, 1)

			hits, err = r.Search(ctx, "%", SearchLimit)
			require.NoError(t, err)
			require.Empty(t, hits)

			hits, err = r.Search(ctx, "tarlac", 1)
			require.NoError(t, err)
			require.Len(t, hits, 1)
		})
	}
}
