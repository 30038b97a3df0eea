package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chedeval/progeval/internal/broadcast"
	"github.com/chedeval/progeval/internal/catalog"
	"github.com/chedeval/progeval/internal/checklist"
	"github.com/chedeval/progeval/internal/dbguard"
	"github.com/chedeval/progeval/internal/evaluation"
	"github.com/chedeval/progeval/internal/evaluation/repository"
	"github.com/chedeval/progeval/internal/storage"
	"github.com/chedeval/progeval/internal/submissions"
	"github.com/chedeval/progeval/pkg/logger"
	"github.com/chedeval/progeval/pkg/metrics"
)

const refNoAttempts = 5

// CatalogSource supplies the reference catalog snapshot.
type CatalogSource interface {
	Snapshot(ctx context.Context) (*catalog.Catalog, error)
}

// Deps are the collaborators of the evaluation service. Archive and Receipts
// are optional.
type Deps struct {
	Repo     repository.Repository
	Guard    *dbguard.Guard
	Catalog  CatalogSource
	Notifier *broadcast.Notifier
	Archive  storage.Archive
	Receipts submissions.Store
}

type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	URLExpiry    time.Duration
}

type Service struct {
	Deps
	opts     Options
	newRefNo func() (string, error)
	now      func() time.Time
}

func New(d Deps, opts Options) *Service {
	if d.Guard == nil {
		d.Guard = dbguard.New(nil, 0)
	}
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = time.Hour
	}
	return &Service{Deps: d, opts: opts, newRefNo: evaluation.NewRefNo, now: time.Now}
}

// SaveOptions controls the reviewer gate and the post-save broadcast.
type SaveOptions struct {
	Reviewer bool
	Publish  bool
}

func (s *Service) Get(ctx context.Context, refNo string) (*evaluation.Record, error) {
	return dbguard.Run(ctx, s.Guard, "evaluation.get", s.opts.ReadTimeout, func(ctx context.Context) (*evaluation.Record, error) {
		return s.Repo.Get(ctx, refNo)
	})
}

func (s *Service) List(ctx context.Context) ([]evaluation.Record, error) {
	return dbguard.Run(ctx, s.Guard, "evaluation.list", s.opts.ReadTimeout, s.Repo.List)
}

// Search requires a non-blank query and returns at most repository.SearchLimit records.
func (s *Service) Search(ctx context.Context, q string) ([]evaluation.Record, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, &evaluation.ValidationError{Field: "q", Msg: "Search query is required"}
	}
	return dbguard.Run(ctx, s.Guard, "evaluation.search", s.opts.ReadTimeout, func(ctx context.Context) ([]evaluation.Record, error) {
		return s.Repo.Search(ctx, q, repository.SearchLimit)
	})
}

// Upsert creates the record, or updates the one with the same refNo. A blank
// refNo gets a freshly generated one.
func (s *Service) Upsert(ctx context.Context, rec *evaluation.Record) (created bool, err error) {
	if err := normalizeRecord(rec); err != nil {
		return false, err
	}
	if rec.DateOfEvaluation.IsZero() {
		rec.DateOfEvaluation = s.now().UTC()
	}

	if rec.RefNo == "" {
		return true, s.createWithNewRefNo(ctx, rec)
	}
	if !evaluation.ValidRefNo(rec.RefNo) {
		return false, &evaluation.ValidationError{Field: "refNo", Msg: "must be 1-32 letters or digits"}
	}

	_, err = s.Get(ctx, rec.RefNo)
	switch {
	case errors.Is(err, evaluation.ErrNotFound):
		err = s.create(ctx, rec)
		if !errors.Is(err, evaluation.ErrRefNoTaken) {
			return err == nil, err
		}
		// lost a race with another create; fall through to update
	case err != nil:
		return false, err
	}
	rec.ID = ""
	return false, s.Guard.Exec(ctx, "evaluation.update", s.opts.WriteTimeout, func(ctx context.Context) error {
		return s.Repo.Update(ctx, rec)
	})
}

func (s *Service) create(ctx context.Context, rec *evaluation.Record) error {
	rec.ID = uuid.NewString()
	return s.Guard.Exec(ctx, "evaluation.create", s.opts.WriteTimeout, func(ctx context.Context) error {
		return s.Repo.Create(ctx, rec)
	})
}

func (s *Service) createWithNewRefNo(ctx context.Context, rec *evaluation.Record) error {
	for attempt := 1; attempt <= refNoAttempts; attempt++ {
		refNo, err := s.newRefNo()
		if err != nil {
			return fmt.Errorf("generate refNo: %w", err)
		}
		rec.RefNo = refNo
		err = s.create(ctx, rec)
		if !errors.Is(err, evaluation.ErrRefNoTaken) {
			return err
		}
		logger.Warnf("evaluation: refNo collision on attempt %d, regenerating", attempt)
	}
	return evaluation.ErrRefNoTaken
}

func normalizeRecord(rec *evaluation.Record) error {
	for _, f := range []struct {
		name string
		v    *string
	}{
		{"personnelName", &rec.PersonnelName},
		{"position", &rec.Position},
		{"email", &rec.Email},
		{"institution", &rec.Institution},
		{"academicYear", &rec.AcademicYear},
	} {
		*f.v = strings.TrimSpace(*f.v)
		if *f.v == "" {
			return &evaluation.ValidationError{Field: f.name}
		}
	}
	rec.RefNo = strings.TrimSpace(rec.RefNo)
	rec.ORNumber = strings.TrimSpace(rec.ORNumber)
	rec.SelectedCMOs = dedupe(rec.SelectedCMOs)
	rec.SelectedPrograms = dedupe(rec.SelectedPrograms)
	return nil
}

// Responses returns the saved answers keyed by requirement id.
func (s *Service) Responses(ctx context.Context, refNo string) (evaluation.ResponseMap, error) {
	return dbguard.Run(ctx, s.Guard, "responses.get", s.opts.ReadTimeout, func(ctx context.Context) (evaluation.ResponseMap, error) {
		return s.Repo.Responses(ctx, refNo)
	})
}

// SaveResponses replaces the whole response set of refNo with in. Without
// reviewer rights the CHED-side fields of every submitted item keep their
// stored values. The saved map is broadcast when opts.Publish is set.
func (s *Service) SaveResponses(ctx context.Context, refNo string, in map[string]evaluation.Response, opts SaveOptions) (evaluation.ResponseMap, error) {
	refNo = strings.TrimSpace(refNo)
	if refNo == "" {
		return nil, &evaluation.ValidationError{Field: "refNo", Msg: "Reference number is required"}
	}
	next, err := evaluation.NormalizeResponses(in)
	if err != nil {
		return nil, err
	}
	if !opts.Reviewer {
		stored, err := s.Responses(ctx, refNo)
		if err != nil {
			return nil, err
		}
		for id, r := range next {
			next[id] = r.WithReviewerFields(stored[id])
		}
	}

	err = s.Guard.Exec(ctx, "responses.replace", s.opts.WriteTimeout, func(ctx context.Context) error {
		return s.Repo.ReplaceResponses(ctx, refNo, next)
	})
	if err != nil {
		return nil, err
	}
	metrics.ResponsesSaved.Inc()
	if opts.Publish {
		s.Notifier.Notify(ctx, refNo, next)
	}
	return next, nil
}

// Checklist compiles the merged checklist for the record's selected CMOs.
func (s *Service) Checklist(ctx context.Context, refNo string) ([]checklist.MergedSection, error) {
	var (
		rec *evaluation.Record
		cat *catalog.Catalog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rec, err = s.Get(gctx, refNo)
		return err
	})
	g.Go(func() (err error) {
		cat, err = s.Catalog.Snapshot(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return checklist.Compile(cat, rec.SelectedCMOs), nil
}

// Compile builds a checklist for an ad-hoc CMO selection.
func (s *Service) Compile(ctx context.Context, cmoIDs []string) ([]checklist.MergedSection, error) {
	cat, err := s.Catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return checklist.Compile(cat, cmoIDs), nil
}

// Snapshot is the archived form of a submitted evaluation.
type Snapshot struct {
	Record      *evaluation.Record        `json:"record"`
	Checklist   []checklist.MergedSection `json:"checklist"`
	Responses   evaluation.ResponseMap    `json:"responses"`
	SubmittedAt time.Time                 `json:"submittedAt"`
}

type SubmitResult struct {
	Responses evaluation.ResponseMap `json:"responses"`
	Receipt   *submissions.Receipt   `json:"receipt"`
}

// Submit saves and broadcasts the responses like SaveResponses, then archives
// a snapshot and records a receipt. Archive or receipt failures are logged;
// the save stands and the receipt reports Archived=false.
func (s *Service) Submit(ctx context.Context, refNo string, in map[string]evaluation.Response, reviewer bool, reviewerEmail string) (*SubmitResult, error) {
	saved, err := s.SaveResponses(ctx, refNo, in, SaveOptions{Reviewer: reviewer, Publish: true})
	if err != nil {
		return nil, err
	}
	refNo = strings.TrimSpace(refNo)

	var (
		rec *evaluation.Record
		cat *catalog.Catalog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rec, err = s.Get(gctx, refNo)
		return err
	})
	g.Go(func() (err error) {
		cat, err = s.Catalog.Snapshot(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sections := checklist.Compile(cat, rec.SelectedCMOs)
	now := s.now().UTC()
	receipt := &submissions.Receipt{
		ID:          uuid.NewString(),
		RefNo:       refNo,
		ItemCount:   len(checklist.ItemIDs(sections)),
		Answered:    answered(saved),
		Reviewer:    reviewerEmail,
		SubmittedAt: now,
	}

	if s.Archive != nil {
		key := fmt.Sprintf("submissions/%s/%s.json", refNo, now.Format("20060102T150405.000Z"))
		snap := Snapshot{Record: rec, Checklist: sections, Responses: saved, SubmittedAt: now}
		if _, err := s.Archive.PutJSON(ctx, key, snap); err != nil {
			logger.Errorf("evaluation %s: archive snapshot: %v", refNo, err)
		} else {
			receipt.ObjectKey = key
			receipt.Archived = true
		}
	}
	if s.Receipts != nil {
		if err := s.Receipts.Save(ctx, receipt); err != nil {
			logger.Errorf("evaluation %s: save receipt: %v", refNo, err)
		}
	}
	return &SubmitResult{Responses: saved, Receipt: receipt}, nil
}

// Submissions lists the receipts of refNo, newest first, with download links
// for archived snapshots.
func (s *Service) Submissions(ctx context.Context, refNo string) ([]submissions.Receipt, error) {
	if _, err := s.Get(ctx, refNo); err != nil {
		return nil, err
	}
	if s.Receipts == nil {
		return []submissions.Receipt{}, nil
	}
	out, err := s.Receipts.List(ctx, refNo)
	if err != nil {
		return nil, err
	}
	if s.Archive == nil {
		return out, nil
	}
	for i := range out {
		if !out[i].Archived {
			continue
		}
		url, err := s.Archive.PresignedURL(ctx, out[i].ObjectKey, s.opts.URLExpiry)
		if err != nil {
			logger.Warnf("evaluation %s: presign %s: %v", refNo, out[i].ObjectKey, err)
			continue
		}
		out[i].URL = url
	}
	return out, nil
}

func answered(m evaluation.ResponseMap) int {
	n := 0
	for _, r := range m {
		if r.Answered() {
			n++
		}
	}
	return n
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
