package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chedeval/progeval/internal/checklist"
	"github.com/chedeval/progeval/internal/database"
	"github.com/chedeval/progeval/internal/evaluation"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const seed = `
programs:
  - id: "181"
    code: BSIT
    name: BS INFORMATION TECHNOLOGY
cmos:
  - id: "2"
    number: CMO No. 25
    title: BSIT
    series: 2015
    programIds: ["181"]
    sections:
      - title: Faculty
        requirements:
          - description: Full-time faculty
          - description: Faculty development plan
  - id: "3"
    number: CMO No. 20
    title: BSCS
    series: 2014
    sections:
      - title: Faculty
        requirements:
          - description: Dean qualifications
`

func TestRefNo(t *testing.T) {
	out, err := run(t, "refno", "-n", "3")
	require.NoError(t, err)
	lines := strings.Fields(out)
	require.Len(t, lines, 3)
	for _, l := range lines {
		require.Len(t, l, 10)
		require.True(t, evaluation.ValidRefNo(l))
	}

	_, err = run(t, "refno", "-n", "0")
	require.Error(t, err)
}

func TestCompileFromSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	out, err := run(t, "compile", "--file", path, "2", "3")
	require.NoError(t, err)

	var sections []checklist.MergedSection
	require.NoError(t, json.Unmarshal([]byte(out), &sections))
	require.Len(t, sections, 1)
	require.Len(t, sections[0].Items, 3)
}

func TestCompileNeedsIDs(t *testing.T) {
	_, err := run(t, "compile")
	require.Error(t, err)
}

func TestSeedAndMigrateAgainstSQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_SQLITE_PATH", filepath.Join(dir, "progeval.db"))

	out, err := run(t, "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "schema up to date")

	out, err = run(t, "seed", "--file", path)
	require.NoError(t, err)
	require.Contains(t, out, "0 rows rejected")

	out, err = run(t, "seed", "--file", path, "--if-empty")
	require.NoError(t, err)
	require.Contains(t, out, "already populated")

	out, err = run(t, "compile", "2")
	require.NoError(t, err)
	require.Contains(t, out, "Full-time faculty")
}

func TestReviewerAddNeedsMongo(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	_, err := run(t, "reviewer", "add", "--email", "ana@ched.gov.ph", "--password", "correct-horse")
	require.Error(t, err)
}

type migrateFunc func(ctx context.Context) error

func (f migrateFunc) Migrate(ctx context.Context) error { return f(ctx) }

func TestMigrateDB_ClosesPoolOnFailure(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	var ran []string
	step := func(name string, err error) migrator {
		return migrateFunc(func(context.Context) error {
			ran = append(ran, name)
			return err
		})
	}
	err = migrateDB(context.Background(), db, step("catalog", nil), step("evaluation", errors.New("no such table")), step("after", nil))
	require.EqualError(t, err, "no such table")
	require.Equal(t, []string{"catalog", "evaluation"}, ran)
	require.Error(t, sqlDB.Ping())
}

func TestMigrateDB_KeepsPoolOpen(t *testing.T) {
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { closeDB(db) })

	require.NoError(t, migrateDB(context.Background(), db, migrateFunc(func(context.Context) error { return nil })))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
}
