package domain

import "time"

// Cell values that render as booleans in tables.
const (
	CellTrue  = "-1"
	CellFalse = "0"

	DefaultDataType = "text"
)

type SchemaDefinition struct {
	ID          uint      `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Version     uint      `json:"version,omitempty" yaml:"version,omitempty"`
	Sections    []Section `json:"sections" yaml:"sections"`
	CreatedAt   time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" yaml:"-"`
}

type Instance struct {
	ID        uint      `json:"id,omitempty" yaml:"id,omitempty"`
	SchemaID  uint      `json:"schema_id" yaml:"schema_id"`
	OwnerRef  string    `json:"owner_ref,omitempty" yaml:"owner_ref,omitempty"`
	Sections  []Section `json:"sections" yaml:"sections"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// Section is shared by schema and instance trees. OwnerID points at the
// schema definition or the instance, depending on which tree holds it.
type Section struct {
	ID       uint     `json:"id,omitempty" yaml:"id,omitempty"`
	OwnerID  uint     `json:"owner_id,omitempty" yaml:"-"`
	Name     string   `json:"name" yaml:"name"`
	Comments string   `json:"comments,omitempty" yaml:"comments,omitempty"`
	Sequence int      `json:"sequence" yaml:"sequence"`
	Version  uint     `json:"version,omitempty" yaml:"version,omitempty"`
	Columns  []Column `json:"columns" yaml:"columns"`
}

type Column struct {
	ID          uint    `json:"id,omitempty" yaml:"id,omitempty"`
	SectionID   uint    `json:"section_id,omitempty" yaml:"-"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Sequence    int     `json:"sequence" yaml:"sequence"`
	DataType    string  `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	NumericSign string  `json:"numeric_sign,omitempty" yaml:"numeric_sign,omitempty"`
	Width       float64 `json:"width,omitempty" yaml:"width,omitempty"`
	Version     uint    `json:"version,omitempty" yaml:"version,omitempty"`
	Cells       []Cell  `json:"cells,omitempty" yaml:"cells,omitempty"`
}

type Cell struct {
	ID       uint   `json:"id,omitempty" yaml:"id,omitempty"`
	ColumnID uint   `json:"column_id,omitempty" yaml:"-"`
	RowIndex int    `json:"row_index" yaml:"row_index"`
	Value    string `json:"value" yaml:"value"`
	Version  uint   `json:"version,omitempty" yaml:"version,omitempty"`
}

type SchemaSummary struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	SectionCount int       `json:"section_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type SchemaPage struct {
	Items      []SchemaSummary `json:"items"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	Total      int64           `json:"total"`
	TotalPages int             `json:"total_pages"`
}

// ReconcileStats counts the writes one reconciliation performed.
type ReconcileStats struct {
	SectionsInserted int `json:"sections_inserted"`
	SectionsUpdated  int `json:"sections_updated"`
	SectionsDeleted  int `json:"sections_deleted"`
	ColumnsInserted  int `json:"columns_inserted"`
	ColumnsUpdated   int `json:"columns_updated"`
	ColumnsDeleted   int `json:"columns_deleted"`
	CellsInserted    int `json:"cells_inserted"`
	CellsUpdated     int `json:"cells_updated"`
	CellsDeleted     int `json:"cells_deleted"`
}

func (s ReconcileStats) Changed() bool {
	return s != ReconcileStats{}
}

type TableHeader struct {
	ColumnID uint   `json:"column_id"`
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

type TableRow struct {
	RowIndex int      `json:"row_index"`
	Cells    []string `json:"cells"`
}

// Table is the row-major view of one section.
type Table struct {
	SectionID uint          `json:"section_id"`
	Name      string        `json:"name"`
	Comments  string        `json:"comments,omitempty"`
	Headers   []TableHeader `json:"headers"`
	Rows      []TableRow    `json:"rows"`
}

type AuditLog struct {
	ID         uint      `json:"id"`
	Actor      string    `json:"actor,omitempty"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   *uint     `json:"target_id,omitempty"`
	Metadata   string    `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
