package sqlite

import "time"

type SchemaModel struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"not null;index"`
	Description string
	Version     uint `gorm:"not null;default:1"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (SchemaModel) TableName() string { return "schemas" }

type InstanceModel struct {
	ID        uint    `gorm:"primaryKey"`
	SchemaID  uint    `gorm:"not null;index"`
	OwnerRef  *string `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (InstanceModel) TableName() string { return "instances" }

// SectionModel, ColumnModel and CellModel have no fixed table: schema and
// instance trees store the same shape in separate tables, chosen through
// tx.Table(...) by the reconciler.
type SectionModel struct {
	ID        uint   `gorm:"primaryKey"`
	OwnerID   uint   `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	Comments  string
	Sequence  int  `gorm:"not null;default:0"`
	Version   uint `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ColumnModel struct {
	ID          uint   `gorm:"primaryKey"`
	SectionID   uint   `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Description string
	Sequence    int    `gorm:"not null;default:0"`
	DataType    string `gorm:"not null;default:'text'"`
	NumericSign string
	Width       float64 `gorm:"not null;default:0"`
	Version     uint    `gorm:"not null;default:1"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CellModel struct {
	ID        uint   `gorm:"primaryKey"`
	ColumnID  uint   `gorm:"not null;index"`
	RowIndex  int    `gorm:"not null"`
	Value     string `gorm:"not null"`
	Version   uint   `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateRequestModel remembers which entity a create call with an
// idempotency key produced.
type CreateRequestModel struct {
	ID         uint   `gorm:"primaryKey"`
	RequestKey string `gorm:"not null;uniqueIndex"`
	TargetType string `gorm:"not null"`
	TargetID   uint   `gorm:"not null"`
	CreatedAt  time.Time
}

func (CreateRequestModel) TableName() string { return "create_requests" }

type AuditLogModel struct {
	ID         uint   `gorm:"primaryKey"`
	Actor      string `gorm:"not null;default:''"`
	Action     string `gorm:"not null;index"`
	TargetType string `gorm:"not null;index"`
	TargetID   *uint
	Metadata   string
	CreatedAt  time.Time
}

func (AuditLogModel) TableName() string { return "audit_logs" }
