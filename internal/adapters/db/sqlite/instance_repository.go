package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/prathameshpawar06/stockbridge/internal/domain"
	"gorm.io/gorm"
)

type InstanceRepository struct {
	db *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// CreateInstance clones the section and column skeleton of a schema into a
// new instance. Cells are not copied and the instance never follows later
// schema edits.
func (r *InstanceRepository) CreateInstance(ctx context.Context, schemaID uint, ownerRef, requestKey string) (domain.Instance, error) {
	var instanceID uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, found, err := lookupCreateRequest(tx, requestKey, targetInstance)
		if err != nil {
			return err
		}
		if found {
			instanceID = existing
			return nil
		}

		var schema SchemaModel
		if err := tx.First(&schema, schemaID).Error; err != nil {
			return schemaLookupError(err, schemaID)
		}

		m := InstanceModel{SchemaID: schema.ID}
		if ownerRef != "" {
			var count int64
			if err := tx.Model(&InstanceModel{}).Where("owner_ref = ?", ownerRef).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return domain.Conflict("owner %s already has an instance", ownerRef)
			}
			m.OwnerRef = &ownerRef
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}

		sections, err := loadTree(tx, schemaTree, schema.ID)
		if err != nil {
			return err
		}
		if err := newReconciler(tx, instanceTree).sections(m.ID, skeleton(sections)); err != nil {
			return err
		}
		instanceID = m.ID
		return recordCreateRequest(tx, requestKey, targetInstance, m.ID)
	})
	if err != nil {
		return domain.Instance{}, domain.TransactionFailure(err)
	}

	return r.GetInstanceByID(ctx, instanceID)
}

// UpdateInstance reconciles all three levels of an instance tree against
// sections. An empty sections slice removes every section of the instance.
// Assigned identities reach sections only once the transaction commits.
func (r *InstanceRepository) UpdateInstance(ctx context.Context, id uint, sections []domain.Section) (domain.Instance, domain.ReconcileStats, error) {
	var stats domain.ReconcileStats
	applied := cloneSections(sections)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m InstanceModel
		if err := tx.First(&m, id).Error; err != nil {
			return instanceLookupError(err, id)
		}

		rec := newReconciler(tx, instanceTree)
		if err := rec.sections(m.ID, applied); err != nil {
			return err
		}
		stats = rec.stats
		if !stats.Changed() {
			return nil
		}
		return tx.Model(&InstanceModel{}).Where("id = ?", m.ID).Update("updated_at", time.Now().UTC()).Error
	})
	if err != nil {
		return domain.Instance{}, domain.ReconcileStats{}, domain.TransactionFailure(err)
	}
	writeBack(sections, applied)

	updated, err := r.GetInstanceByID(ctx, id)
	return updated, stats, err
}

func (r *InstanceRepository) DeleteInstance(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m InstanceModel
		if err := tx.First(&m, id).Error; err != nil {
			return instanceLookupError(err, id)
		}
		if err := newReconciler(tx, instanceTree).clear(m.ID); err != nil {
			return err
		}
		if err := tx.Delete(&InstanceModel{}, m.ID).Error; err != nil {
			return err
		}
		return forgetCreateRequests(tx, targetInstance, m.ID)
	})
	return domain.TransactionFailure(err)
}

func (r *InstanceRepository) GetInstanceByID(ctx context.Context, id uint) (domain.Instance, error) {
	var m InstanceModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return domain.Instance{}, instanceLookupError(err, id)
	}
	return r.withTree(ctx, m)
}

func (r *InstanceRepository) GetInstanceByOwner(ctx context.Context, ownerRef string) (domain.Instance, error) {
	var m InstanceModel
	if err := r.db.WithContext(ctx).Where("owner_ref = ?", ownerRef).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Instance{}, domain.NotFound("no instance for owner %s", ownerRef)
		}
		return domain.Instance{}, err
	}
	return r.withTree(ctx, m)
}

// DeleteColumns removes the given instance columns and their cells. Ids
// that do not resolve are skipped; it fails only when none resolve.
func (r *InstanceRepository) DeleteColumns(ctx context.Context, columnIDs []uint) (int, error) {
	var deleted int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found := make([]uint, 0, len(columnIDs))
		if err := tx.Table(instanceTree.columns).Where("id IN ?", columnIDs).Pluck("id", &found).Error; err != nil {
			return err
		}
		if len(found) == 0 {
			return domain.NotFound("none of columns %v exist", columnIDs)
		}
		rec := newReconciler(tx, instanceTree)
		if err := rec.deleteColumns(found); err != nil {
			return err
		}
		deleted = rec.stats.ColumnsDeleted
		return nil
	})
	if err != nil {
		return 0, domain.TransactionFailure(err)
	}
	return deleted, nil
}

// DeleteRow removes the cells at rowIndex from every column of a section.
// Other sections are untouched even when they use the same row index.
func (r *InstanceRepository) DeleteRow(ctx context.Context, sectionID uint, rowIndex int) (int, error) {
	var deleted int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Table(instanceTree.sections).Where("id = ?", sectionID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.NotFound("section %d not found", sectionID)
		}

		columnIDs := make([]uint, 0)
		if err := tx.Table(instanceTree.columns).Where("section_id = ?", sectionID).Pluck("id", &columnIDs).Error; err != nil {
			return err
		}
		if len(columnIDs) == 0 {
			return nil
		}
		res := tx.Table(instanceTree.cells).Where("column_id IN ? AND row_index = ?", columnIDs, rowIndex).Delete(&CellModel{})
		if res.Error != nil {
			return res.Error
		}
		deleted = int(res.RowsAffected)
		return nil
	})
	if err != nil {
		return 0, domain.TransactionFailure(err)
	}
	return deleted, nil
}

func (r *InstanceRepository) withTree(ctx context.Context, m InstanceModel) (domain.Instance, error) {
	sections, err := loadTree(r.db.WithContext(ctx), instanceTree, m.ID)
	if err != nil {
		return domain.Instance{}, err
	}
	result := domain.Instance{
		ID:        m.ID,
		SchemaID:  m.SchemaID,
		Sections:  sections,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.OwnerRef != nil {
		result.OwnerRef = *m.OwnerRef
	}
	return result, nil
}

func instanceLookupError(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFound("instance %d not found", id)
	}
	return err
}
