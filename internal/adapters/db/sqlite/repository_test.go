package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/prathameshpawar06/stockbridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "stockbridge_test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func countRows(t *testing.T, db *gorm.DB, table string) int64 {
	t.Helper()
	var count int64
	if err := db.Table(table).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func liabilitySchema() domain.SchemaDefinition {
	return domain.SchemaDefinition{
		Name:        "General Liability",
		Description: "Coverage schedule",
		Sections: []domain.Section{
			{Name: "Limits", Sequence: 2, Columns: []domain.Column{
				{Name: "Limit", Sequence: 1, DataType: "number", NumericSign: "$", Width: 12.5},
			}},
			{Name: "Coverages", Comments: "per location", Sequence: 1, Columns: []domain.Column{
				{Name: "Notes", Sequence: 2},
				{Name: "Covered", Description: "Is the peril covered", Sequence: 1, DataType: "bool",
					Cells: []domain.Cell{{RowIndex: 1, Value: "-1"}}},
			}},
		},
	}
}

func TestRunMigrationsReportsVersion(t *testing.T) {
	db := openTestDB(t)
	version, err := RunMigrations(context.Background(), db)
	if err != nil {
		t.Fatalf("rerun migrations: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected schema version 1, got %d", version)
	}
}

func TestCreateSchemaOrdersSkeletonAndIgnoresCells(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewSchemaRepository(db)

	schema, err := repo.CreateSchema(ctx, liabilitySchema(), "")
	require.NoError(t, err)

	require.Len(t, schema.Sections, 2)
	assert.Equal(t, "Coverages", schema.Sections[0].Name)
	assert.Equal(t, "per location", schema.Sections[0].Comments)
	assert.Equal(t, "Limits", schema.Sections[1].Name)
	require.Len(t, schema.Sections[0].Columns, 2)
	assert.Equal(t, "Covered", schema.Sections[0].Columns[0].Name)
	assert.Equal(t, "bool", schema.Sections[0].Columns[0].DataType)
	assert.Equal(t, domain.DefaultDataType, schema.Sections[0].Columns[1].DataType)
	assert.Equal(t, "$", schema.Sections[1].Columns[0].NumericSign)
	assert.Equal(t, 12.5, schema.Sections[1].Columns[0].Width)
	assert.Empty(t, schema.Sections[0].Columns[0].Cells)
	assert.Equal(t, int64(0), countRows(t, db, "instance_cells"))
}

func TestUpdateSchemaReconcilesSectionsAndColumns(t *testing.T) {
	ctx := context.Background()
	repo := NewSchemaRepository(openTestDB(t))

	schema, err := repo.CreateSchema(ctx, liabilitySchema(), "")
	require.NoError(t, err)

	coverages := schema.Sections[0]
	coverages.Name = "Perils"
	coverages.Columns = append(coverages.Columns[:1], domain.Column{Name: "Deductible", Sequence: 3})
	schema.Name = "GL 2026"
	schema.Sections = []domain.Section{coverages}

	updated, stats, err := repo.UpdateSchema(ctx, schema)
	require.NoError(t, err)

	assert.Equal(t, "GL 2026", updated.Name)
	assert.Equal(t, uint(2), updated.Version)
	require.Len(t, updated.Sections, 1)
	assert.Equal(t, "Perils", updated.Sections[0].Name)
	require.Len(t, updated.Sections[0].Columns, 2)
	assert.Equal(t, "Covered", updated.Sections[0].Columns[0].Name)
	assert.Equal(t, "Deductible", updated.Sections[0].Columns[1].Name)
	assert.NotZero(t, schema.Sections[0].Columns[1].ID, "new column id should be written back")

	assert.Equal(t, 1, stats.SectionsUpdated)
	assert.Equal(t, 1, stats.SectionsDeleted)
	assert.Equal(t, 1, stats.ColumnsInserted)
	assert.Equal(t, 2, stats.ColumnsDeleted)
}

func TestUpdateSchemaMissingIsNotFound(t *testing.T) {
	repo := NewSchemaRepository(openTestDB(t))
	_, _, err := repo.UpdateSchema(context.Background(), domain.SchemaDefinition{ID: 404, Name: "x"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteSchemaCascades(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewSchemaRepository(db)

	schema, err := repo.CreateSchema(ctx, liabilitySchema(), "")
	require.NoError(t, err)
	require.NoError(t, repo.DeleteSchema(ctx, schema.ID))

	assert.Equal(t, int64(0), countRows(t, db, "schema_sections"))
	assert.Equal(t, int64(0), countRows(t, db, "schema_columns"))
	_, err = repo.GetSchemaByID(ctx, schema.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteSchema(ctx, schema.ID), domain.ErrNotFound)
}

func TestListSchemasFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	repo := NewSchemaRepository(openTestDB(t))

	for _, name := range []string{"Auto fleet", "Auto dealers", "Property", "Auto garage"} {
		_, err := repo.CreateSchema(ctx, domain.SchemaDefinition{Name: name, Sections: []domain.Section{{Name: "Main"}}}, "")
		require.NoError(t, err)
	}

	page, err := repo.ListSchemas(ctx, "Auto", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Auto garage", page.Items[0].Name)
	assert.Equal(t, 1, page.Items[0].SectionCount)

	page, err = repo.ListSchemas(ctx, "Auto", 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Auto fleet", page.Items[0].Name)
}

func TestCreateInstanceClonesSkeleton(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	schemas := NewSchemaRepository(db)
	instances := NewInstanceRepository(db)

	schema, err := schemas.CreateSchema(ctx, liabilitySchema(), "")
	require.NoError(t, err)

	inst, err := instances.CreateInstance(ctx, schema.ID, "POL-100", "")
	require.NoError(t, err)
	assert.Equal(t, schema.ID, inst.SchemaID)
	assert.Equal(t, "POL-100", inst.OwnerRef)

	require.Len(t, inst.Sections, len(schema.Sections))
	for i, s := range schema.Sections {
		got := inst.Sections[i]
		assert.Equal(t, s.Name, got.Name)
		assert.Equal(t, s.Comments, got.Comments)
		assert.Equal(t, s.Sequence, got.Sequence)
		assert.Equal(t, inst.ID, got.OwnerID)
		require.Len(t, got.Columns, len(s.Columns))
		for j, c := range s.Columns {
			assert.Equal(t, c.Name, got.Columns[j].Name)
			assert.Equal(t, c.Description, got.Columns[j].Description)
			assert.Equal(t, c.Sequence, got.Columns[j].Sequence)
			assert.Equal(t, c.DataType, got.Columns[j].DataType)
			assert.Equal(t, c.NumericSign, got.Columns[j].NumericSign)
			assert.Equal(t, c.Width, got.Columns[j].Width)
			assert.Empty(t, got.Columns[j].Cells)
		}
	}

	// Later schema edits do not reach the instance.
	schema.Sections[0].Name = "Renamed"
	_, _, err = schemas.UpdateSchema(ctx, schema)
	require.NoError(t, err)
	reloaded, err := instances.GetInstanceByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "Coverages", reloaded.Sections[0].Name)

	byOwner, err := instances.GetInstanceByOwner(ctx, "POL-100")
	require.NoError(t, err)
	assert.Equal(t, inst.ID, byOwner.ID)
}

func TestCreateInstanceErrors(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	schemas := NewSchemaRepository(db)
	instances := NewInstanceRepository(db)

	_, err := instances.CreateInstance(ctx, 99, "", "")
	require.ErrorIs(t, err, domain.ErrNotFound)

	schema, err := schemas.CreateSchema(ctx, liabilitySchema(), "")
	require.NoError(t, err)
	_, err = instances.CreateInstance(ctx, schema.ID, "POL-1", "")
	require.NoError(t, err)
	_, err = instances.CreateInstance(ctx, schema.ID, "POL-1", "")
	require.ErrorIs(t, err, domain.ErrConflict)

	// Instances without an owner reference do not collide.
	_, err = instances.CreateInstance(ctx, schema.ID, "", "")
	require.NoError(t, err)
	_, err = instances.CreateInstance(ctx, schema.ID, "", "")
	require.NoError(t, err)
}

func TestCreateWithRequestKeyReturnsFirstResult(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	schemas := NewSchemaRepository(db)
	instances := NewInstanceRepository(db)

	key := uuid.NewString()
	first, err := schemas.CreateSchema(ctx, liabilitySchema(), key)
	require.NoError(t, err)
	second, err := schemas.CreateSchema(ctx, liabilitySchema(), key)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), countRows(t, db, "schemas"))

	instanceKey := uuid.NewString()
	a, err := instances.CreateInstance(ctx, first.ID, "POL-7", instanceKey)
	require.NoError(t, err)
	b, err := instances.CreateInstance(ctx, first.ID, "POL-7", instanceKey)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	_, err = instances.CreateInstance(ctx, first.ID, "", key)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func newInstance(t *testing.T, db *gorm.DB) domain.Instance {
	t.Helper()
	ctx := context.Background()
	schema, err := NewSchemaRepository(db).CreateSchema(ctx, liabilitySchema(), "")
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}
	inst, err := NewInstanceRepository(db).CreateInstance(ctx, schema.ID, "", "")
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	return inst
}

func fillCoverages(inst *domain.Instance) {
	covered := &inst.Sections[0].Columns[0]
	notes := &inst.Sections[0].Columns[1]
	covered.Cells = []domain.Cell{{RowIndex: 1, Value: "-1"}, {RowIndex: 2, Value: ""}, {RowIndex: 3, Value: "0"}}
	notes.Cells = []domain.Cell{{RowIndex: 1, Value: "flood"}, {RowIndex: 2, Value: "ignored"}}
	limit := &inst.Sections[1].Columns[0]
	limit.Cells = []domain.Cell{{RowIndex: 1, Value: "1000000"}, {RowIndex: 3, Value: "5000"}}
}

func TestUpdateInstanceWritesBackIdentities(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewInstanceRepository(db)
	inst := newInstance(t, db)
	fillCoverages(&inst)

	submitted := inst.Sections
	updated, stats, err := repo.UpdateInstance(ctx, inst.ID, submitted)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.CellsInserted)

	for _, s := range submitted {
		for _, c := range s.Columns {
			for _, cell := range c.Cells {
				assert.NotZero(t, cell.ID)
				assert.Equal(t, c.ID, cell.ColumnID)
				assert.Equal(t, uint(1), cell.Version)
			}
		}
	}
	assert.Equal(t, submitted, updated.Sections)
}

func TestUpdateInstanceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewInstanceRepository(db)
	inst := newInstance(t, db)
	fillCoverages(&inst)

	first, _, err := repo.UpdateInstance(ctx, inst.ID, inst.Sections)
	require.NoError(t, err)
	second, stats, err := repo.UpdateInstance(ctx, inst.ID, inst.Sections)
	require.NoError(t, err)

	assert.False(t, stats.Changed(), "second identical update should not write: %+v", stats)
	assert.Equal(t, first.Sections, second.Sections)
}

func TestUpdateInstanceCascadesRemovedChildren(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewInstanceRepository(db)
	inst := newInstance(t, db)
	fillCoverages(&inst)

	inst, _, err := repo.UpdateInstance(ctx, inst.ID, inst.Sections)
	require.NoError(t, err)

	// Drop the Coverages section and the first limit cell, rename Limit.
	limits := inst.Sections[1]
	limits.Columns[0].Name = "Aggregate"
	limits.Columns[0].Cells = limits.Columns[0].Cells[1:]
	updated, stats, err := repo.UpdateInstance(ctx, inst.ID, []domain.Section{limits})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.SectionsDeleted)
	assert.Equal(t, 2, stats.ColumnsDeleted)
	assert.Equal(t, 6, stats.CellsDeleted)
	assert.Equal(t, 1, stats.ColumnsUpdated)

	require.Len(t, updated.Sections, 1)
	assert.Equal(t, "Aggregate", updated.Sections[0].Columns[0].Name)
	assert.Equal(t, uint(2), updated.Sections[0].Columns[0].Version)
	require.Len(t, updated.Sections[0].Columns[0].Cells, 1)
	assert.Equal(t, "5000", updated.Sections[0].Columns[0].Cells[0].Value)

	assert.Equal(t, int64(1), countRows(t, db, "instance_sections"))
	assert.Equal(t, int64(1), countRows(t, db, "instance_columns"))
	assert.Equal(t, int64(1), countRows(t, db, "instance_cells"))
}

func TestUpdateInstanceEmptySubmissionClearsTree(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewInstanceRepository(db)
	inst := newInstance(t, db)
	fillCoverages(&inst)
	_, _, err := repo.UpdateInstance(ctx, inst.ID, inst.Sections)
	require.NoError(t, err)

	cleared, _, err := repo.UpdateInstance(ctx, inst.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, cleared.Sections)
	assert.Equal(t, int64(0), countRows(t, db, "instance_sections"))
	assert.Equal(t, int64(0), countRows(t, db, "instance_columns"))
	assert.Equal(t, int64(0), countRows(t, db, "instance_cells"))
}

func TestUpdateInstanceEmptyColumnCellsClearsOnlyThatColumn(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewInstanceRepository(db)
	inst := newInstance(t, db)
	fillCoverages(&inst)
	inst, _, err := repo.UpdateInstance(ctx, inst.ID, inst.Sections)
	require.NoError(t, err)

	inst.Sections[0].Columns[1].Cells = nil
	updated, stats, err := repo.UpdateInstance(ctx, inst.ID, inst.Sections)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CellsDeleted)
	assert.Empty(t, updated.Sections[0].Columns[1].Cells)
	assert.Len(t, updated.Sections[0].Columns[0].Cells, 3)
}

func TestUpdateInstanceRejectsForeignIdentityAndRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewInstanceRepository(db)
	a := newInstance(t, db)
	b := newInstance(t, db)

	// Rename a section of A, then point at one of B's columns.
	a.Sections[0].Name = "Changed"
	a.Sections[1].Columns = []domain.Column{b.Sections[1].Columns[0]}

	_, _, err := repo.UpdateInstance(ctx, a.ID, a.Sections)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	reloaded, err := repo.GetInstanceByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Coverages", reloaded.Sections[0].Name, "rename must be rolled back")
	otherB, err := repo.GetInstanceByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Sections, otherB.Sections)
}

func TestUpdateInstanceFailedCallLeavesSubmissionRetryable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewInstanceRepository(db)
	a := newInstance(t, db)
	b := newInstance(t, db)

	submitted := append([]domain.Section{{
		Name:     "Exclusions",
		Sequence: 3,
		Columns: []domain.Column{{Name: "Peril", Sequence: 1,
			Cells: []domain.Cell{{RowIndex: 1, Value: "war"}}}},
	}}, a.Sections...)
	limitColumns := submitted[2].Columns
	submitted[2].Columns = []domain.Column{b.Sections[1].Columns[0]}

	_, _, err := repo.UpdateInstance(ctx, a.ID, submitted)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	// The new section was inserted before the failure; its rolled-back
	// identities must not leak into the caller's tree.
	assert.Zero(t, submitted[0].ID)
	assert.Zero(t, submitted[0].Version)
	assert.Zero(t, submitted[0].Columns[0].ID)
	assert.Zero(t, submitted[0].Columns[0].Cells[0].ID)
	assert.Equal(t, int64(4), countRows(t, db, "instance_sections"))
	assert.Equal(t, int64(0), countRows(t, db, "instance_cells"))

	submitted[2].Columns = limitColumns
	updated, stats, err := repo.UpdateInstance(ctx, a.ID, submitted)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SectionsInserted)
	assert.Equal(t, 1, stats.CellsInserted)
	assert.NotZero(t, submitted[0].ID)
	assert.NotZero(t, submitted[0].Columns[0].Cells[0].ID)

	require.Len(t, updated.Sections, 3)
	assert.Equal(t, "Exclusions", updated.Sections[2].Name)
	assert.Equal(t, submitted[0].ID, updated.Sections[2].ID)

	otherB, err := repo.GetInstanceByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Sections, otherB.Sections)
}

func TestUpdateInstanceVersionConflict(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewInstanceRepository(db)
	inst := newInstance(t, db)

	stale := inst.Sections[0]
	inst.Sections[0].Name = "First writer"
	_, _, err := repo.UpdateInstance(ctx, inst.ID, inst.Sections)
	require.NoError(t, err)

	stale.Name = "Second writer"
	_, _, err = repo.UpdateInstance(ctx, inst.ID, []domain.Section{stale, inst.Sections[1]})
	require.ErrorIs(t, err, domain.ErrConflict)

	// Without a version the write wins.
	stale.Version = 0
	updated, _, err := repo.UpdateInstance(ctx, inst.ID, []domain.Section{stale, inst.Sections[1]})
	require.NoError(t, err)
	assert.Equal(t, "Second writer", updated.Sections[0].Name)
	assert.Equal(t, uint(3), updated.Sections[0].Version)
}

func TestUpdateInstanceMissingIsNotFound(t *testing.T) {
	repo := NewInstanceRepository(openTestDB(t))
	_, _, err := repo.UpdateInstance(context.Background(), 12, nil)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteInstance(context.Background(), 12), domain.ErrNotFound)
}

func TestDeleteInstanceCascades(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewInstanceRepository(db)
	inst := newInstance(t, db)
	fillCoverages(&inst)
	_, _, err := repo.UpdateInstance(ctx, inst.ID, inst.Sections)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteInstance(ctx, inst.ID))
	for _, table := range []string{"instances", "instance_sections", "instance_columns", "instance_cells"} {
		assert.Equal(t, int64(0), countRows(t, db, table), table)
	}
	// The schema survives.
	assert.Equal(t, int64(1), countRows(t, db, "schemas"))
}

func TestDeleteRowOnlyTouchesOneSection(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewInstanceRepository(db)
	inst := newInstance(t, db)
	fillCoverages(&inst)
	inst, _, err := repo.UpdateInstance(ctx, inst.ID, inst.Sections)
	require.NoError(t, err)

	deleted, err := repo.DeleteRow(ctx, inst.Sections[0].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	reloaded, err := repo.GetInstanceByID(ctx, inst.ID)
	require.NoError(t, err)
	for _, c := range reloaded.Sections[0].Columns {
		for _, cell := range c.Cells {
			assert.NotEqual(t, 1, cell.RowIndex)
		}
	}
	limitCells := reloaded.Sections[1].Columns[0].Cells
	require.Len(t, limitCells, 2)
	assert.Equal(t, 1, limitCells[0].RowIndex)

	_, err = repo.DeleteRow(ctx, 9999, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteColumnsRemovesCells(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewInstanceRepository(db)
	inst := newInstance(t, db)
	fillCoverages(&inst)
	inst, _, err := repo.UpdateInstance(ctx, inst.ID, inst.Sections)
	require.NoError(t, err)

	notes := inst.Sections[0].Columns[1]
	deleted, err := repo.DeleteColumns(ctx, []uint{notes.ID, 424242})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	reloaded, err := repo.GetInstanceByID(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Sections[0].Columns, 1)
	assert.Equal(t, "Covered", reloaded.Sections[0].Columns[0].Name)
	assert.Len(t, reloaded.Sections[0].Columns[0].Cells, 3)
	assert.Len(t, reloaded.Sections[1].Columns[0].Cells, 2)
	assert.Equal(t, int64(5), countRows(t, db, "instance_cells"))

	_, err = repo.DeleteColumns(ctx, []uint{424242})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAuditLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(openTestDB(t))
	id := uint(5)
	require.NoError(t, repo.CreateAuditLog(ctx, domain.AuditLog{Actor: "cli", Action: "instance.create", TargetType: "instance", TargetID: &id}))
	require.NoError(t, repo.CreateAuditLog(ctx, domain.AuditLog{Action: "instance.delete", TargetType: "instance", TargetID: &id}))

	logs, err := repo.ListAuditLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "instance.delete", logs[0].Action)
	assert.Equal(t, "cli", logs[1].Actor)
}
