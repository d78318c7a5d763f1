package domain

import "context"

type SchemaRepository interface {
	CreateSchema(ctx context.Context, value SchemaDefinition, requestKey string) (SchemaDefinition, error)
	UpdateSchema(ctx context.Context, value SchemaDefinition) (SchemaDefinition, ReconcileStats, error)
	DeleteSchema(ctx context.Context, id uint) error
	GetSchemaByID(ctx context.Context, id uint) (SchemaDefinition, error)
	ListSchemas(ctx context.Context, query string, page, pageSize int) (SchemaPage, error)
}

type InstanceRepository interface {
	CreateInstance(ctx context.Context, schemaID uint, ownerRef, requestKey string) (Instance, error)
	UpdateInstance(ctx context.Context, id uint, sections []Section) (Instance, ReconcileStats, error)
	DeleteInstance(ctx context.Context, id uint) error
	GetInstanceByID(ctx context.Context, id uint) (Instance, error)
	GetInstanceByOwner(ctx context.Context, ownerRef string) (Instance, error)
	DeleteColumns(ctx context.Context, columnIDs []uint) (int, error)
	DeleteRow(ctx context.Context, sectionID uint, rowIndex int) (int, error)
}

type AuditRepository interface {
	CreateAuditLog(ctx context.Context, value AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]AuditLog, error)
}
