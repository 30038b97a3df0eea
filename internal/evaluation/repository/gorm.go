package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/chedeval/progeval/internal/evaluation"
)

// insertBatch keeps each insert to a couple of rows so a large save does not
// hold many pooled connections or build one oversized statement.
const insertBatch = 2

// GormRepo stores evaluations in the relational database.
type GormRepo struct {
	db *gorm.DB
}

func NewGormRepo(db *gorm.DB) *GormRepo {
	return &GormRepo{db: db}
}

// Migrate creates or updates the evaluation tables.
func (r *GormRepo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&evaluation.Record{}, &evaluation.Response{})
}

func (r *GormRepo) Get(ctx context.Context, refNo string) (*evaluation.Record, error) {
	var rec evaluation.Record
	err := r.db.WithContext(ctx).Where("ref_no = ?", refNo).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, evaluation.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *GormRepo) Create(ctx context.Context, rec *evaluation.Record) error {
	if rec.SelectedCMOs == nil {
		rec.SelectedCMOs = []string{}
	}
	if rec.SelectedPrograms == nil {
		rec.SelectedPrograms = []string{}
	}
	err := r.db.WithContext(ctx).Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return evaluation.ErrRefNoTaken
	}
	return err
}

func (r *GormRepo) Update(ctx context.Context, rec *evaluation.Record) error {
	if rec.SelectedCMOs == nil {
		rec.SelectedCMOs = []string{}
	}
	if rec.SelectedPrograms == nil {
		rec.SelectedPrograms = []string{}
	}
	res := r.db.WithContext(ctx).Model(&evaluation.Record{}).
		Where("ref_no = ?", rec.RefNo).
		Updates(map[string]interface{}{
			"personnel_name":     rec.PersonnelName,
			"position":           rec.Position,
			"email":              rec.Email,
			"institution":        rec.Institution,
			"academic_year":      rec.AcademicYear,
			"selected_cmos":      rec.SelectedCMOs,
			"selected_programs":  rec.SelectedPrograms,
			"or_number":          rec.ORNumber,
			"date_of_evaluation": rec.DateOfEvaluation,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return evaluation.ErrNotFound
	}
	return r.db.WithContext(ctx).Where("ref_no = ?", rec.RefNo).Take(rec).Error
}

func (r *GormRepo) List(ctx context.Context) ([]evaluation.Record, error) {
	var out []evaluation.Record
	err := r.db.WithContext(ctx).Order("updated_at DESC").Order("ref_no ASC").Find(&out).Error
	return out, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *GormRepo) Search(ctx context.Context, q string, limit int) ([]evaluation.Record, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
	var out []evaluation.Record
	tx := r.db.WithContext(ctx).
		Where(`LOWER(personnel_name) LIKE ? ESCAPE '\' OR LOWER(ref_no) LIKE ? ESCAPE '\' OR LOWER(institution) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern, pattern).
		Order("updated_at DESC").Order("ref_no ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	err := tx.Find(&out).Error
	return out, err
}

func (r *GormRepo) Responses(ctx context.Context, refNo string) (evaluation.ResponseMap, error) {
	rec, err := r.Get(ctx, refNo)
	if err != nil {
		return nil, err
	}
	var rows []evaluation.Response
	if err := r.db.WithContext(ctx).Where("evaluation_id = ?", rec.ID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(evaluation.ResponseMap, len(rows))
	for _, row := range rows {
		out[row.RequirementID] = row
	}
	return out, nil
}

// ReplaceResponses deletes the record's responses and inserts rs in one
// transaction, so readers see either the old set or the new one.
func (r *GormRepo) ReplaceResponses(ctx context.Context, refNo string, rs evaluation.ResponseMap) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec evaluation.Record
		err := tx.Select("id").Where("ref_no = ?", refNo).Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return evaluation.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Where("evaluation_id = ?", rec.ID).Delete(&evaluation.Response{}).Error; err != nil {
			return err
		}
		if len(rs) == 0 {
			return nil
		}
		rows := rs.Sorted()
		for i := range rows {
			rows[i].RecordID = rec.ID
		}
		return tx.CreateInBatches(&rows, insertBatch).Error
	})
}
