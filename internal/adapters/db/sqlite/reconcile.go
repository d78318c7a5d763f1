package sqlite

import (
	"time"

	"github.com/prathameshpawar06/stockbridge/internal/domain"
	"gorm.io/gorm"
)

// treeTables names the tables one kind of tree is stored in. Schema trees
// have no cell table.
type treeTables struct {
	sections string
	columns  string
	cells    string
}

func (t treeTables) hasCells() bool { return t.cells != "" }

var (
	schemaTree   = treeTables{sections: "schema_sections", columns: "schema_columns"}
	instanceTree = treeTables{sections: "instance_sections", columns: "instance_columns", cells: "instance_cells"}
)

// reconciler applies a submitted tree to the persisted one inside a single
// transaction. Children with an id are updated, children without one are
// inserted and get their new id written back into the submitted value, and
// persisted children missing from the submission are deleted together with
// everything below them. Every lookup is scoped by the parent id.
type reconciler struct {
	tx     *gorm.DB
	tables treeTables
	now    time.Time
	stats  domain.ReconcileStats
}

func newReconciler(tx *gorm.DB, tables treeTables) *reconciler {
	return &reconciler{tx: tx, tables: tables, now: time.Now().UTC()}
}

func (r *reconciler) sections(ownerID uint, submitted []domain.Section) error {
	persisted := make([]SectionModel, 0)
	if err := r.tx.Table(r.tables.sections).Where("owner_id = ?", ownerID).Find(&persisted).Error; err != nil {
		return err
	}
	byID := make(map[uint]SectionModel, len(persisted))
	for _, m := range persisted {
		byID[m.ID] = m
	}

	seen := make(map[uint]struct{}, len(submitted))
	for i := range submitted {
		s := &submitted[i]
		if s.ID == 0 {
			m := SectionModel{OwnerID: ownerID, Name: s.Name, Comments: s.Comments, Sequence: s.Sequence, Version: 1}
			if err := r.tx.Table(r.tables.sections).Create(&m).Error; err != nil {
				return err
			}
			s.ID, s.Version = m.ID, m.Version
			r.stats.SectionsInserted++
		} else {
			m, ok := byID[s.ID]
			if !ok {
				return domain.InvalidArgument("section %d does not belong to owner %d", s.ID, ownerID)
			}
			if _, dup := seen[s.ID]; dup {
				return domain.InvalidArgument("section %d submitted more than once", s.ID)
			}
			if err := checkVersion("section", s.ID, s.Version, m.Version); err != nil {
				return err
			}
			if m.Name != s.Name || m.Comments != s.Comments || m.Sequence != s.Sequence {
				if err := r.update(r.tables.sections, "owner_id", ownerID, m.ID, m.Version, map[string]any{
					"name":     s.Name,
					"comments": s.Comments,
					"sequence": s.Sequence,
				}); err != nil {
					return err
				}
				m.Version++
				r.stats.SectionsUpdated++
			}
			s.Version = m.Version
		}
		s.OwnerID = ownerID
		seen[s.ID] = struct{}{}

		if err := r.columns(s.ID, s.Columns); err != nil {
			return err
		}
	}

	return r.deleteSections(staleIDs(persisted, seen, func(m SectionModel) uint { return m.ID }))
}

func (r *reconciler) columns(sectionID uint, submitted []domain.Column) error {
	persisted := make([]ColumnModel, 0)
	if err := r.tx.Table(r.tables.columns).Where("section_id = ?", sectionID).Find(&persisted).Error; err != nil {
		return err
	}
	byID := make(map[uint]ColumnModel, len(persisted))
	for _, m := range persisted {
		byID[m.ID] = m
	}

	seen := make(map[uint]struct{}, len(submitted))
	for i := range submitted {
		c := &submitted[i]
		if c.ID == 0 {
			m := ColumnModel{
				SectionID:   sectionID,
				Name:        c.Name,
				Description: c.Description,
				Sequence:    c.Sequence,
				DataType:    defaultString(c.DataType, domain.DefaultDataType),
				NumericSign: c.NumericSign,
				Width:       c.Width,
				Version:     1,
			}
			if err := r.tx.Table(r.tables.columns).Create(&m).Error; err != nil {
				return err
			}
			c.ID, c.Version, c.DataType = m.ID, m.Version, m.DataType
			r.stats.ColumnsInserted++
		} else {
			m, ok := byID[c.ID]
			if !ok {
				return domain.InvalidArgument("column %d does not belong to section %d", c.ID, sectionID)
			}
			if _, dup := seen[c.ID]; dup {
				return domain.InvalidArgument("column %d submitted more than once", c.ID)
			}
			if err := checkVersion("column", c.ID, c.Version, m.Version); err != nil {
				return err
			}
			dataType := defaultString(c.DataType, m.DataType)
			if m.Name != c.Name || m.Description != c.Description || m.Sequence != c.Sequence ||
				m.DataType != dataType || m.NumericSign != c.NumericSign || m.Width != c.Width {
				if err := r.update(r.tables.columns, "section_id", sectionID, m.ID, m.Version, map[string]any{
					"name":         c.Name,
					"description":  c.Description,
					"sequence":     c.Sequence,
					"data_type":    dataType,
					"numeric_sign": c.NumericSign,
					"width":        c.Width,
				}); err != nil {
					return err
				}
				m.Version++
				r.stats.ColumnsUpdated++
			}
			c.Version, c.DataType = m.Version, dataType
		}
		c.SectionID = sectionID
		seen[c.ID] = struct{}{}

		if r.tables.hasCells() {
			if err := r.cells(c.ID, c.Cells); err != nil {
				return err
			}
		}
	}

	return r.deleteColumns(staleIDs(persisted, seen, func(m ColumnModel) uint { return m.ID }))
}

func (r *reconciler) cells(columnID uint, submitted []domain.Cell) error {
	persisted := make([]CellModel, 0)
	if err := r.tx.Table(r.tables.cells).Where("column_id = ?", columnID).Find(&persisted).Error; err != nil {
		return err
	}
	byID := make(map[uint]CellModel, len(persisted))
	for _, m := range persisted {
		byID[m.ID] = m
	}

	seen := make(map[uint]struct{}, len(submitted))
	for i := range submitted {
		cell := &submitted[i]
		if cell.ID == 0 {
			m := CellModel{ColumnID: columnID, RowIndex: cell.RowIndex, Value: cell.Value, Version: 1}
			if err := r.tx.Table(r.tables.cells).Create(&m).Error; err != nil {
				return err
			}
			cell.ID, cell.Version = m.ID, m.Version
			r.stats.CellsInserted++
		} else {
			m, ok := byID[cell.ID]
			if !ok {
				return domain.InvalidArgument("cell %d does not belong to column %d", cell.ID, columnID)
			}
			if _, dup := seen[cell.ID]; dup {
				return domain.InvalidArgument("cell %d submitted more than once", cell.ID)
			}
			if err := checkVersion("cell", cell.ID, cell.Version, m.Version); err != nil {
				return err
			}
			if m.RowIndex != cell.RowIndex || m.Value != cell.Value {
				if err := r.update(r.tables.cells, "column_id", columnID, m.ID, m.Version, map[string]any{
					"row_index": cell.RowIndex,
					"value":     cell.Value,
				}); err != nil {
					return err
				}
				m.Version++
				r.stats.CellsUpdated++
			}
			cell.Version = m.Version
		}
		cell.ColumnID = columnID
		seen[cell.ID] = struct{}{}
	}

	stale := staleIDs(persisted, seen, func(m CellModel) uint { return m.ID })
	if len(stale) == 0 {
		return nil
	}
	res := r.tx.Table(r.tables.cells).Where("id IN ?", stale).Delete(&CellModel{})
	if res.Error != nil {
		return res.Error
	}
	r.stats.CellsDeleted += int(res.RowsAffected)
	return nil
}

// update writes one child row, guarded by its parent and the version that
// was read at the start of the level.
func (r *reconciler) update(table, parentColumn string, parentID, id, version uint, fields map[string]any) error {
	fields["version"] = version + 1
	fields["updated_at"] = r.now
	res := r.tx.Table(table).
		Where("id = ? AND "+parentColumn+" = ? AND version = ?", id, parentID, version).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Conflict("%s row %d changed concurrently", table, id)
	}
	return nil
}

// deleteSections removes sections child first: cells, columns, sections.
func (r *reconciler) deleteSections(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	columnIDs := make([]uint, 0)
	if err := r.tx.Table(r.tables.columns).Where("section_id IN ?", ids).Pluck("id", &columnIDs).Error; err != nil {
		return err
	}
	if err := r.deleteColumns(columnIDs); err != nil {
		return err
	}
	res := r.tx.Table(r.tables.sections).Where("id IN ?", ids).Delete(&SectionModel{})
	if res.Error != nil {
		return res.Error
	}
	r.stats.SectionsDeleted += int(res.RowsAffected)
	return nil
}

func (r *reconciler) deleteColumns(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if r.tables.hasCells() {
		res := r.tx.Table(r.tables.cells).Where("column_id IN ?", ids).Delete(&CellModel{})
		if res.Error != nil {
			return res.Error
		}
		r.stats.CellsDeleted += int(res.RowsAffected)
	}
	res := r.tx.Table(r.tables.columns).Where("id IN ?", ids).Delete(&ColumnModel{})
	if res.Error != nil {
		return res.Error
	}
	r.stats.ColumnsDeleted += int(res.RowsAffected)
	return nil
}

func (r *reconciler) clear(ownerID uint) error {
	ids := make([]uint, 0)
	if err := r.tx.Table(r.tables.sections).Where("owner_id = ?", ownerID).Pluck("id", &ids).Error; err != nil {
		return err
	}
	return r.deleteSections(ids)
}

// checkVersion enforces optimistic concurrency when the caller sent a
// version. Zero means the caller did not track versions.
func checkVersion(kind string, id, submitted, stored uint) error {
	if submitted == 0 || submitted == stored {
		return nil
	}
	return domain.Conflict("%s %d is at version %d, not %d", kind, id, stored, submitted)
}

func staleIDs[M any](persisted []M, seen map[uint]struct{}, id func(M) uint) []uint {
	stale := make([]uint, 0)
	for _, m := range persisted {
		if _, ok := seen[id(m)]; !ok {
			stale = append(stale, id(m))
		}
	}
	return stale
}

// loadTree reads an owner's sections with their columns and, for instance
// trees, cells. Sections and columns are ordered by sequence, cells by row
// index; ties keep insertion order.
func loadTree(tx *gorm.DB, tables treeTables, ownerID uint) ([]domain.Section, error) {
	sectionRows := make([]SectionModel, 0)
	if err := tx.Table(tables.sections).Where("owner_id = ?", ownerID).Order("sequence ASC, id ASC").Find(&sectionRows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Section, 0, len(sectionRows))
	if len(sectionRows) == 0 {
		return result, nil
	}

	sectionIDs := make([]uint, 0, len(sectionRows))
	for _, m := range sectionRows {
		sectionIDs = append(sectionIDs, m.ID)
	}
	columnRows := make([]ColumnModel, 0)
	if err := tx.Table(tables.columns).Where("section_id IN ?", sectionIDs).Order("sequence ASC, id ASC").Find(&columnRows).Error; err != nil {
		return nil, err
	}

	cellsByColumn := make(map[uint][]domain.Cell)
	if tables.hasCells() && len(columnRows) > 0 {
		columnIDs := make([]uint, 0, len(columnRows))
		for _, m := range columnRows {
			columnIDs = append(columnIDs, m.ID)
		}
		cellRows := make([]CellModel, 0)
		if err := tx.Table(tables.cells).Where("column_id IN ?", columnIDs).Order("row_index ASC, id ASC").Find(&cellRows).Error; err != nil {
			return nil, err
		}
		for _, m := range cellRows {
			cellsByColumn[m.ColumnID] = append(cellsByColumn[m.ColumnID], domain.Cell{
				ID:       m.ID,
				ColumnID: m.ColumnID,
				RowIndex: m.RowIndex,
				Value:    m.Value,
				Version:  m.Version,
			})
		}
	}

	columnsBySection := make(map[uint][]domain.Column)
	for _, m := range columnRows {
		columnsBySection[m.SectionID] = append(columnsBySection[m.SectionID], domain.Column{
			ID:          m.ID,
			SectionID:   m.SectionID,
			Name:        m.Name,
			Description: m.Description,
			Sequence:    m.Sequence,
			DataType:    m.DataType,
			NumericSign: m.NumericSign,
			Width:       m.Width,
			Version:     m.Version,
			Cells:       cellsByColumn[m.ID],
		})
	}

	for _, m := range sectionRows {
		columns := columnsBySection[m.ID]
		if columns == nil {
			columns = []domain.Column{}
		}
		result = append(result, domain.Section{
			ID:       m.ID,
			OwnerID:  m.OwnerID,
			Name:     m.Name,
			Comments: m.Comments,
			Sequence: m.Sequence,
			Version:  m.Version,
			Columns:  columns,
		})
	}
	return result, nil
}

// skeleton copies a tree without identities or cells, ready to be inserted
// under a new owner.
func skeleton(sections []domain.Section) []domain.Section {
	result := make([]domain.Section, 0, len(sections))
	for _, s := range sections {
		columns := make([]domain.Column, 0, len(s.Columns))
		for _, c := range s.Columns {
			columns = append(columns, domain.Column{
				Name:        c.Name,
				Description: c.Description,
				Sequence:    c.Sequence,
				DataType:    c.DataType,
				NumericSign: c.NumericSign,
				Width:       c.Width,
			})
		}
		result = append(result, domain.Section{
			Name:     s.Name,
			Comments: s.Comments,
			Sequence: s.Sequence,
			Columns:  columns,
		})
	}
	return result
}

// cloneSections deep copies a submitted tree so the reconciler can assign
// identities without touching the caller's value until the commit succeeds.
func cloneSections(sections []domain.Section) []domain.Section {
	if sections == nil {
		return nil
	}
	result := make([]domain.Section, len(sections))
	for i, s := range sections {
		result[i] = s
		if s.Columns == nil {
			continue
		}
		result[i].Columns = make([]domain.Column, len(s.Columns))
		for j, c := range s.Columns {
			result[i].Columns[j] = c
			if c.Cells != nil {
				result[i].Columns[j].Cells = append([]domain.Cell(nil), c.Cells...)
			}
		}
	}
	return result
}

// writeBack copies identities, parents and versions assigned during a
// committed reconciliation into the caller's tree. Both trees have the
// same shape because applied came from cloneSections(dst).
func writeBack(dst, applied []domain.Section) {
	for i := range dst {
		s, a := &dst[i], applied[i]
		s.ID, s.OwnerID, s.Version = a.ID, a.OwnerID, a.Version
		for j := range s.Columns {
			c, ac := &s.Columns[j], a.Columns[j]
			c.ID, c.SectionID, c.Version, c.DataType = ac.ID, ac.SectionID, ac.Version, ac.DataType
			for k := range c.Cells {
				cell, acell := &c.Cells[k], ac.Cells[k]
				cell.ID, cell.ColumnID, cell.Version = acell.ID, acell.ColumnID, acell.Version
			}
		}
	}
}
