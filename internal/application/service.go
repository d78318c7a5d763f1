package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/prathameshpawar06/stockbridge/internal/domain"
)

type TemplateService struct {
	schemas   domain.SchemaRepository
	instances domain.InstanceRepository
	audit     domain.AuditRepository
	logger    *slog.Logger
}

type CreateSchemaInput struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description" yaml:"description"`
	Sections    []domain.Section `json:"sections" yaml:"sections"`
	RequestKey  string           `json:"request_key,omitempty" yaml:"-"`
}

type CreateInstanceInput struct {
	SchemaID   uint   `json:"schema_id"`
	OwnerRef   string `json:"owner_ref"`
	RequestKey string `json:"request_key,omitempty"`
}

func NewTemplateService(schemas domain.SchemaRepository, instances domain.InstanceRepository, audit domain.AuditRepository, logger *slog.Logger) *TemplateService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateService{schemas: schemas, instances: instances, audit: audit, logger: logger}
}

type actorKey struct{}

// WithActor tags ctx with the caller name recorded in audit logs.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, strings.TrimSpace(actor))
}

func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

func (s *TemplateService) CreateSchema(ctx context.Context, in CreateSchemaInput) (domain.SchemaDefinition, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.SchemaDefinition{}, domain.InvalidArgument("name is required")
	}
	if err := validateRequestKey(in.RequestKey); err != nil {
		return domain.SchemaDefinition{}, err
	}

	schema, err := s.schemas.CreateSchema(ctx, domain.SchemaDefinition{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Sections:    in.Sections,
	}, in.RequestKey)
	if err != nil {
		return domain.SchemaDefinition{}, err
	}

	s.logger.InfoContext(ctx, "schema created", "schema_id", schema.ID, "sections", len(schema.Sections))
	s.writeAudit(ctx, "schema.create", "schema", schema.ID, map[string]any{"name": schema.Name})
	return schema, nil
}

// UpdateSchema reconciles sections and columns only; cells are ignored.
func (s *TemplateService) UpdateSchema(ctx context.Context, value domain.SchemaDefinition) (domain.SchemaDefinition, error) {
	if value.ID == 0 {
		return domain.SchemaDefinition{}, domain.InvalidArgument("schema id is required")
	}
	value.Name = strings.TrimSpace(value.Name)
	if value.Name == "" {
		return domain.SchemaDefinition{}, domain.InvalidArgument("name is required")
	}

	schema, stats, err := s.schemas.UpdateSchema(ctx, value)
	if err != nil {
		return domain.SchemaDefinition{}, err
	}

	s.logger.InfoContext(ctx, "schema updated", "schema_id", schema.ID, "stats", stats)
	s.writeAudit(ctx, "schema.update", "schema", schema.ID, stats)
	return schema, nil
}

func (s *TemplateService) DeleteSchema(ctx context.Context, id uint) error {
	if id == 0 {
		return domain.InvalidArgument("schema id is required")
	}
	if err := s.schemas.DeleteSchema(ctx, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "schema deleted", "schema_id", id)
	s.writeAudit(ctx, "schema.delete", "schema", id, nil)
	return nil
}

func (s *TemplateService) GetSchema(ctx context.Context, id uint) (domain.SchemaDefinition, error) {
	if id == 0 {
		return domain.SchemaDefinition{}, domain.InvalidArgument("schema id is required")
	}
	return s.schemas.GetSchemaByID(ctx, id)
}

func (s *TemplateService) ListSchemas(ctx context.Context, query string, page, pageSize int) (domain.SchemaPage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	if pageSize > 1000 {
		pageSize = 1000
	}
	return s.schemas.ListSchemas(ctx, query, page, pageSize)
}

func (s *TemplateService) CreateInstance(ctx context.Context, in CreateInstanceInput) (domain.Instance, error) {
	if in.SchemaID == 0 {
		return domain.Instance{}, domain.InvalidArgument("schema_id is required")
	}
	if err := validateRequestKey(in.RequestKey); err != nil {
		return domain.Instance{}, err
	}

	inst, err := s.instances.CreateInstance(ctx, in.SchemaID, strings.TrimSpace(in.OwnerRef), in.RequestKey)
	if err != nil {
		return domain.Instance{}, err
	}

	s.logger.InfoContext(ctx, "instance created", "instance_id", inst.ID, "schema_id", inst.SchemaID, "owner_ref", inst.OwnerRef)
	s.writeAudit(ctx, "instance.create", "instance", inst.ID, map[string]any{"schema_id": inst.SchemaID, "owner_ref": inst.OwnerRef})
	return inst, nil
}

// UpdateInstance reconciles the full tree. An empty sections slice deletes
// every section; callers that mean to clear should prefer ClearInstance.
// New identities are written back into sections.
func (s *TemplateService) UpdateInstance(ctx context.Context, id uint, sections []domain.Section) (domain.Instance, error) {
	if id == 0 {
		return domain.Instance{}, domain.InvalidArgument("instance id is required")
	}

	inst, stats, err := s.instances.UpdateInstance(ctx, id, sections)
	if err != nil {
		return domain.Instance{}, err
	}

	if len(sections) == 0 && stats.SectionsDeleted > 0 {
		s.logger.WarnContext(ctx, "instance cleared by empty update", "instance_id", id, "sections_deleted", stats.SectionsDeleted)
	}
	s.logger.InfoContext(ctx, "instance updated", "instance_id", id, "stats", stats)
	s.writeAudit(ctx, "instance.update", "instance", id, stats)
	return inst, nil
}

func (s *TemplateService) ClearInstance(ctx context.Context, id uint) (domain.Instance, error) {
	if id == 0 {
		return domain.Instance{}, domain.InvalidArgument("instance id is required")
	}

	inst, stats, err := s.instances.UpdateInstance(ctx, id, nil)
	if err != nil {
		return domain.Instance{}, err
	}

	s.logger.InfoContext(ctx, "instance cleared", "instance_id", id, "stats", stats)
	s.writeAudit(ctx, "instance.clear", "instance", id, stats)
	return inst, nil
}

func (s *TemplateService) DeleteInstance(ctx context.Context, id uint) error {
	if id == 0 {
		return domain.InvalidArgument("instance id is required")
	}
	if err := s.instances.DeleteInstance(ctx, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "instance deleted", "instance_id", id)
	s.writeAudit(ctx, "instance.delete", "instance", id, nil)
	return nil
}

func (s *TemplateService) GetInstance(ctx context.Context, id uint) (domain.Instance, error) {
	if id == 0 {
		return domain.Instance{}, domain.InvalidArgument("instance id is required")
	}
	return s.instances.GetInstanceByID(ctx, id)
}

func (s *TemplateService) GetInstanceByOwner(ctx context.Context, ownerRef string) (domain.Instance, error) {
	ownerRef = strings.TrimSpace(ownerRef)
	if ownerRef == "" {
		return domain.Instance{}, domain.InvalidArgument("owner_ref is required")
	}
	return s.instances.GetInstanceByOwner(ctx, ownerRef)
}

func (s *TemplateService) GetInstanceTable(ctx context.Context, id uint) ([]domain.Table, error) {
	inst, err := s.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildTables(inst.Sections), nil
}

func (s *TemplateService) DeleteColumns(ctx context.Context, columnIDs []uint) (int, error) {
	if len(columnIDs) == 0 {
		return 0, domain.InvalidArgument("column_ids is required")
	}
	for _, id := range columnIDs {
		if id == 0 {
			return 0, domain.InvalidArgument("column ids must be positive")
		}
	}

	deleted, err := s.instances.DeleteColumns(ctx, columnIDs)
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "columns deleted", "requested", len(columnIDs), "deleted", deleted)
	s.writeAudit(ctx, "columns.delete", "column", 0, map[string]any{"column_ids": columnIDs, "deleted": deleted})
	return deleted, nil
}

func (s *TemplateService) DeleteRow(ctx context.Context, sectionID uint, rowIndex int) (int, error) {
	if sectionID == 0 {
		return 0, domain.InvalidArgument("section_id is required")
	}

	deleted, err := s.instances.DeleteRow(ctx, sectionID, rowIndex)
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "row deleted", "section_id", sectionID, "row_index", rowIndex, "cells", deleted)
	s.writeAudit(ctx, "row.delete", "section", sectionID, map[string]any{"row_index": rowIndex, "cells_deleted": deleted})
	return deleted, nil
}

// DeleteInstanceRow is DeleteRow scoped to one instance: the section must
// belong to instanceID.
func (s *TemplateService) DeleteInstanceRow(ctx context.Context, instanceID, sectionID uint, rowIndex int) (int, error) {
	if sectionID == 0 {
		return 0, domain.InvalidArgument("section_id is required")
	}
	inst, err := s.GetInstance(ctx, instanceID)
	if err != nil {
		return 0, err
	}
	if !slices.ContainsFunc(inst.Sections, func(section domain.Section) bool { return section.ID == sectionID }) {
		return 0, domain.NotFound("section %d not found in instance %d", sectionID, instanceID)
	}
	return s.DeleteRow(ctx, sectionID, rowIndex)
}

func (s *TemplateService) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	return s.audit.ListAuditLogs(ctx, limit)
}

// writeAudit records a mutation. Failures are logged and never undo the
// mutation that already committed.
func (s *TemplateService) writeAudit(ctx context.Context, action, targetType string, targetID uint, metadata any) {
	if s.audit == nil {
		return
	}
	entry := domain.AuditLog{Actor: ActorFrom(ctx), Action: action, TargetType: targetType}
	if targetID != 0 {
		entry.TargetID = &targetID
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err == nil {
			entry.Metadata = string(raw)
		}
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "audit write failed", "action", action, "error", err)
	}
}

func validateRequestKey(key string) error {
	if key == "" {
		return nil
	}
	if _, err := uuid.Parse(key); err != nil {
		return domain.InvalidArgument("request key must be a UUID: %v", err)
	}
	return nil
}
