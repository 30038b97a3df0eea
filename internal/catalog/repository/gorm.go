package repository

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chedeval/progeval/internal/catalog"
)

const importBatch = 100

// GormRepo stores the catalog in the relational database.
type GormRepo struct {
	db *gorm.DB
}

func NewGormRepo(db *gorm.DB) *GormRepo {
	return &GormRepo{db: db}
}

// Migrate creates or updates the catalog tables.
func (r *GormRepo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(
		&catalog.AcademicProgram{},
		&catalog.RegulatoryDocument{},
		&catalog.Section{},
		&catalog.RequirementItem{},
	)
}

func (r *GormRepo) ListPrograms(ctx context.Context) ([]catalog.AcademicProgram, error) {
	var out []catalog.AcademicProgram
	err := r.db.WithContext(ctx).Order("name ASC").Order("id ASC").Find(&out).Error
	return out, err
}

func (r *GormRepo) CreateProgram(ctx context.Context, p *catalog.AcademicProgram) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "name", "updated_at"}),
	}).Create(p).Error
}

func (r *GormRepo) UpdateProgram(ctx context.Context, p *catalog.AcademicProgram) error {
	res := r.db.WithContext(ctx).Model(&catalog.AcademicProgram{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{"code": p.Code, "name": p.Name})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return catalog.ErrNotFound
	}
	return r.db.WithContext(ctx).Take(p, "id = ?", p.ID).Error
}

// DeleteProgram removes the program and drops it from every CMO association.
func (r *GormRepo) DeleteProgram(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&catalog.AcademicProgram{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return catalog.ErrNotFound
		}
		var docs []catalog.RegulatoryDocument
		if err := tx.Find(&docs).Error; err != nil {
			return err
		}
		for _, d := range docs {
			if !d.HasProgram(id) {
				continue
			}
			if err := tx.Model(&catalog.RegulatoryDocument{}).Where("id = ?", d.ID).
				Update("program_ids", datatypes.JSONSlice[string](without(d.ProgramIDs, id))).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GormRepo) ListDocuments(ctx context.Context) ([]catalog.RegulatoryDocument, error) {
	var out []catalog.RegulatoryDocument
	err := r.db.WithContext(ctx).Order("series_year DESC").Order("number ASC").Order("id ASC").Find(&out).Error
	return out, err
}

func (r *GormRepo) CreateDocument(ctx context.Context, d *catalog.RegulatoryDocument) error {
	if d.ProgramIDs == nil {
		d.ProgramIDs = []string{}
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"number", "title", "series_year", "program_ids", "updated_at"}),
	}).Create(d).Error
}

func (r *GormRepo) UpdateDocument(ctx context.Context, d *catalog.RegulatoryDocument) error {
	if d.ProgramIDs == nil {
		d.ProgramIDs = []string{}
	}
	res := r.db.WithContext(ctx).Model(&catalog.RegulatoryDocument{}).
		Where("id = ?", d.ID).
		Updates(map[string]interface{}{
			"number":      d.Number,
			"title":       d.Title,
			"series_year": d.SeriesYear,
			"program_ids": d.ProgramIDs,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return catalog.ErrNotFound
	}
	return r.db.WithContext(ctx).Take(d, "id = ?", d.ID).Error
}

// DeleteDocument removes the CMO together with its sections and requirements.
func (r *GormRepo) DeleteDocument(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cmo_id = ?", id).Delete(&catalog.RequirementItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("cmo_id = ?", id).Delete(&catalog.Section{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&catalog.RegulatoryDocument{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return catalog.ErrNotFound
		}
		return nil
	})
}

func (r *GormRepo) ListSections(ctx context.Context) ([]catalog.Section, error) {
	var out []catalog.Section
	err := r.db.WithContext(ctx).Order("cmo_id ASC").Order("sort_order ASC").Order("id ASC").Find(&out).Error
	return out, err
}

func (r *GormRepo) ListItems(ctx context.Context) ([]catalog.RequirementItem, error) {
	var out []catalog.RequirementItem
	err := r.db.WithContext(ctx).Order("section_id ASC").Order("sort_order ASC").Order("id ASC").Find(&out).Error
	return out, err
}

func (r *GormRepo) Import(ctx context.Context, rows catalog.Rows) error {
	upsert := clause.OnConflict{UpdateAll: true}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows.Documents {
			if rows.Documents[i].ProgramIDs == nil {
				rows.Documents[i].ProgramIDs = []string{}
			}
		}
		steps := []struct {
			rows interface{}
			n    int
		}{
			{&rows.Programs, len(rows.Programs)},
			{&rows.Documents, len(rows.Documents)},
			{&rows.Sections, len(rows.Sections)},
			{&rows.Items, len(rows.Items)},
		}
		for _, s := range steps {
			if s.n == 0 {
				continue
			}
			if err := tx.Clauses(upsert).CreateInBatches(s.rows, importBatch).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
