package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prathameshpawar06/stockbridge/internal/domain"
	"gorm.io/gorm"
)

type SchemaRepository struct {
	db *gorm.DB
}

func NewSchemaRepository(db *gorm.DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

// CreateSchema stores a new schema definition with fresh identities for all
// sections and columns. Cells are never stored for schemas.
func (r *SchemaRepository) CreateSchema(ctx context.Context, value domain.SchemaDefinition, requestKey string) (domain.SchemaDefinition, error) {
	var schemaID uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, found, err := lookupCreateRequest(tx, requestKey, targetSchema)
		if err != nil {
			return err
		}
		if found {
			schemaID = existing
			return nil
		}

		m := SchemaModel{Name: value.Name, Description: value.Description, Version: 1}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		if err := newReconciler(tx, schemaTree).sections(m.ID, skeleton(value.Sections)); err != nil {
			return err
		}
		schemaID = m.ID
		return recordCreateRequest(tx, requestKey, targetSchema, m.ID)
	})
	if err != nil {
		return domain.SchemaDefinition{}, domain.TransactionFailure(err)
	}

	return r.GetSchemaByID(ctx, schemaID)
}

// UpdateSchema reconciles the section and column levels of an existing
// schema. Cells in the submission are ignored.
func (r *SchemaRepository) UpdateSchema(ctx context.Context, value domain.SchemaDefinition) (domain.SchemaDefinition, domain.ReconcileStats, error) {
	var stats domain.ReconcileStats
	applied := cloneSections(value.Sections)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m SchemaModel
		if err := tx.First(&m, value.ID).Error; err != nil {
			return schemaLookupError(err, value.ID)
		}
		if err := checkVersion("schema", m.ID, value.Version, m.Version); err != nil {
			return err
		}
		if m.Name != value.Name || m.Description != value.Description {
			res := tx.Model(&SchemaModel{}).
				Where("id = ? AND version = ?", m.ID, m.Version).
				Updates(map[string]any{"name": value.Name, "description": value.Description, "version": m.Version + 1})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return domain.Conflict("schema %d changed concurrently", m.ID)
			}
		}

		rec := newReconciler(tx, schemaTree)
		if err := rec.sections(m.ID, applied); err != nil {
			return err
		}
		stats = rec.stats
		return nil
	})
	if err != nil {
		return domain.SchemaDefinition{}, domain.ReconcileStats{}, domain.TransactionFailure(err)
	}
	writeBack(value.Sections, applied)

	updated, err := r.GetSchemaByID(ctx, value.ID)
	return updated, stats, err
}

func (r *SchemaRepository) DeleteSchema(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m SchemaModel
		if err := tx.First(&m, id).Error; err != nil {
			return schemaLookupError(err, id)
		}
		if err := newReconciler(tx, schemaTree).clear(m.ID); err != nil {
			return err
		}
		if err := tx.Delete(&SchemaModel{}, m.ID).Error; err != nil {
			return err
		}
		return forgetCreateRequests(tx, targetSchema, m.ID)
	})
	return domain.TransactionFailure(err)
}

func (r *SchemaRepository) GetSchemaByID(ctx context.Context, id uint) (domain.SchemaDefinition, error) {
	db := r.db.WithContext(ctx)
	var m SchemaModel
	if err := db.First(&m, id).Error; err != nil {
		return domain.SchemaDefinition{}, schemaLookupError(err, id)
	}
	sections, err := loadTree(db, schemaTree, m.ID)
	if err != nil {
		return domain.SchemaDefinition{}, err
	}

	return domain.SchemaDefinition{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Version:     m.Version,
		Sections:    sections,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func (r *SchemaRepository) ListSchemas(ctx context.Context, query string, page, pageSize int) (domain.SchemaPage, error) {
	filtered := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&SchemaModel{})
		if strings.TrimSpace(query) != "" {
			like := "%" + strings.TrimSpace(query) + "%"
			q = q.Where("name LIKE ?", like)
		}
		return q
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return domain.SchemaPage{}, err
	}

	type row struct {
		ID           uint
		Name         string
		Description  string
		SectionCount int
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}
	rows := make([]row, 0)
	err := filtered().Select("schemas.id, schemas.name, schemas.description, schemas.created_at, schemas.updated_at, " +
		"(SELECT COUNT(*) FROM schema_sections ss WHERE ss.owner_id = schemas.id) AS section_count").
		Order("schemas.id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Scan(&rows).Error
	if err != nil {
		return domain.SchemaPage{}, err
	}

	items := make([]domain.SchemaSummary, 0, len(rows))
	for _, m := range rows {
		items = append(items, domain.SchemaSummary{
			ID:           m.ID,
			Name:         m.Name,
			Description:  m.Description,
			SectionCount: m.SectionCount,
			CreatedAt:    m.CreatedAt,
			UpdatedAt:    m.UpdatedAt,
		})
	}

	return domain.SchemaPage{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

func schemaLookupError(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFound("schema %d not found", id)
	}
	return err
}
