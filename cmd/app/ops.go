package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/prathameshpawar06/stockbridge/internal/application"
	"github.com/prathameshpawar06/stockbridge/internal/domain"
	"gopkg.in/yaml.v3"
)

// readTreeFile decodes a YAML or JSON document into out.
func readTreeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

type instanceTreeFile struct {
	Sections []domain.Section `yaml:"sections"`
}

func doSchemasList(ctx context.Context, cfg cliConfig, q string, page, pageSize int, out *domain.SchemaPage) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		return client.call(ctx, "schemas.list", map[string]any{"q": q, "page": page, "page_size": pageSize}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	params := url.Values{}
	if q != "" {
		params.Set("q", q)
	}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		params.Set("page_size", strconv.Itoa(pageSize))
	}
	path := "/api/schemas"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return client.request(ctx, http.MethodGet, path, nil, nil, out)
}

func doSchemaGet(ctx context.Context, cfg cliConfig, id uint, out *domain.SchemaDefinition) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		return client.call(ctx, "schemas.get", map[string]any{"id": id}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodGet, "/api/schemas/"+uintToString(id), nil, nil, out)
}

func doSchemaCreate(ctx context.Context, cfg cliConfig, in application.CreateSchemaInput, out *domain.SchemaDefinition) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		return client.call(ctx, "schemas.create", map[string]any{
			"name":        in.Name,
			"description": in.Description,
			"sections":    in.Sections,
			"request_key": in.RequestKey,
		}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPost, "/api/schemas", in, map[string]string{"Idempotency-Key": in.RequestKey}, out)
}

func doSchemaUpdate(ctx context.Context, cfg cliConfig, value domain.SchemaDefinition, out *domain.SchemaDefinition) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		return client.call(ctx, "schemas.update", map[string]any{
			"id":          value.ID,
			"name":        value.Name,
			"description": value.Description,
			"version":     value.Version,
			"sections":    value.Sections,
		}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPut, "/api/schemas/"+uintToString(value.ID), value, nil, out)
}

func doSchemaDelete(ctx context.Context, cfg cliConfig, id uint) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		return client.call(ctx, "schemas.delete", map[string]any{"id": id}, nil)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodDelete, "/api/schemas/"+uintToString(id), nil, nil, nil)
}

func doInstanceCreate(ctx context.Context, cfg cliConfig, in application.CreateInstanceInput, out *domain.Instance) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		return client.call(ctx, "instances.create", map[string]any{
			"schema_id":   in.SchemaID,
			"owner_ref":   in.OwnerRef,
			"request_key": in.RequestKey,
		}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPost, "/api/instances", in, map[string]string{"Idempotency-Key": in.RequestKey}, out)
}

func doInstanceGet(ctx context.Context, cfg cliConfig, id uint, owner string, out *domain.Instance) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		if owner != "" {
			return client.call(ctx, "instances.by_owner", map[string]any{"owner_ref": owner}, out)
		}
		return client.call(ctx, "instances.get", map[string]any{"id": id}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	if owner != "" {
		return client.request(ctx, http.MethodGet, "/api/instances/by-owner/"+url.PathEscape(owner), nil, nil, out)
	}
	return client.request(ctx, http.MethodGet, "/api/instances/"+uintToString(id), nil, nil, out)
}

func doInstanceUpdate(ctx context.Context, cfg cliConfig, id uint, sections []domain.Section, out *domain.Instance) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		return client.call(ctx, "instances.update", map[string]any{"id": id, "sections": sections}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPut, "/api/instances/"+uintToString(id), map[string]any{"sections": sections}, nil, out)
}

func doInstanceClear(ctx context.Context, cfg cliConfig, id uint, out *domain.Instance) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		return client.call(ctx, "instances.clear", map[string]any{"id": id}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPost, "/api/instances/"+uintToString(id)+"/clear", nil, nil, out)
}

func doInstanceDelete(ctx context.Context, cfg cliConfig, id uint) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		return client.call(ctx, "instances.delete", map[string]any{"id": id}, nil)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodDelete, "/api/instances/"+uintToString(id), nil, nil, nil)
}

func doInstanceTable(ctx context.Context, cfg cliConfig, id uint, out *[]domain.Table) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		return client.call(ctx, "instances.table", map[string]any{"id": id}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodGet, "/api/instances/"+uintToString(id)+"/table", nil, nil, out)
}

type deletedCount struct {
	Deleted int `json:"deleted"`
}

func doColumnsDelete(ctx context.Context, cfg cliConfig, ids []uint, out *deletedCount) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		return client.call(ctx, "columns.delete", map[string]any{"column_ids": ids}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPost, "/api/columns/delete", map[string]any{"column_ids": ids}, nil, out)
}

func doRowDelete(ctx context.Context, cfg cliConfig, sectionID uint, rowIndex int, out *deletedCount) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		return client.call(ctx, "rows.delete", map[string]any{"section_id": sectionID, "row_index": rowIndex}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodPost, "/api/sections/"+uintToString(sectionID)+"/rows/delete", map[string]any{"row_index": rowIndex}, nil, out)
}

func doAuditList(ctx context.Context, cfg cliConfig, limit int, out *[]domain.AuditLog) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket, cfg.Actor)
		return client.call(ctx, "audit.list", map[string]any{"limit": limit}, out)
	}
	client := newAPIClient(cfg.Server, cfg.Actor)
	return client.request(ctx, http.MethodGet, "/api/audit/logs?limit="+strconv.Itoa(limit), nil, nil, out)
}
