package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/prathameshpawar06/stockbridge/internal/application"
	"github.com/prathameshpawar06/stockbridge/internal/domain"
)

// Error codes beyond the JSON-RPC 2.0 reserved range.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32000
	codeNotFound       = -32004
	codeConflict       = -32009
)

type Server struct {
	service  *application.TemplateService
	logger   *slog.Logger
	listener net.Listener
	path     string
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func Start(path string, service *application.TemplateService, logger *slog.Logger) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rpc socket path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}

	s := &Server{service: service, logger: logger, listener: ln, path: path}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: "parse error"}, ID: nil})
			return
		}

		resp := s.dispatch(context.Background(), req)
		if resp.Error != nil {
			s.logger.Warn("rpc call failed", "method", req.Method, "code", resp.Error.Code, "error", resp.Error.Message)
		}
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

// Every params object may carry "actor", recorded in the audit log.
type actorParams struct {
	Actor string `json:"actor"`
}

type idParams struct {
	actorParams
	ID uint `json:"id"`
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: codeInvalidRequest, Message: "invalid request"}, ID: req.ID}
	}

	var actor actorParams
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &actor)
	}
	if actor.Actor != "" {
		ctx = application.WithActor(ctx, actor.Actor)
	}

	var (
		out any
		err error
	)
	switch req.Method {
	case "schemas.list":
		var p struct {
			Q        string `json:"q"`
			Page     int    `json:"page"`
			PageSize int    `json:"page_size"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err = s.service.ListSchemas(ctx, p.Q, p.Page, p.PageSize)
	case "schemas.get":
		var p idParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err = s.service.GetSchema(ctx, p.ID)
	case "schemas.create":
		var p application.CreateSchemaInput
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err = s.service.CreateSchema(ctx, p)
	case "schemas.update":
		var p domain.SchemaDefinition
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err = s.service.UpdateSchema(ctx, p)
	case "schemas.delete":
		var p idParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err = map[string]any{"deleted": true}, s.service.DeleteSchema(ctx, p.ID)
	case "instances.create":
		var p application.CreateInstanceInput
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err = s.service.CreateInstance(ctx, p)
	case "instances.get":
		var p idParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err = s.service.GetInstance(ctx, p.ID)
	case "instances.by_owner":
		var p struct {
			OwnerRef string `json:"owner_ref"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err = s.service.GetInstanceByOwner(ctx, p.OwnerRef)
	case "instances.update":
		var p struct {
			ID       uint             `json:"id"`
			Sections []domain.Section `json:"sections"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err = s.service.UpdateInstance(ctx, p.ID, p.Sections)
	case "instances.clear":
		var p idParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err = s.service.ClearInstance(ctx, p.ID)
	case "instances.delete":
		var p idParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err = map[string]any{"deleted": true}, s.service.DeleteInstance(ctx, p.ID)
	case "instances.table":
		var p idParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err = s.service.GetInstanceTable(ctx, p.ID)
	case "columns.delete":
		var p struct {
			ColumnIDs []uint `json:"column_ids"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		var n int
		n, err = s.service.DeleteColumns(ctx, p.ColumnIDs)
		out = map[string]any{"deleted": n}
	case "rows.delete":
		var p struct {
			SectionID uint `json:"section_id"`
			RowIndex  *int `json:"row_index"`
		}
		if !decodeParams(req.Params, &p) || p.RowIndex == nil {
			return invalidParams(req.ID)
		}
		var n int
		n, err = s.service.DeleteRow(ctx, p.SectionID, *p.RowIndex)
		out = map[string]any{"deleted": n}
	case "audit.list":
		var p struct {
			Limit int `json:"limit"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		out, err = s.service.ListAuditLogs(ctx, p.Limit)
	default:
		return response{JSONRPC: "2.0", Error: &rpcError{Code: codeMethodNotFound, Message: "method not found"}, ID: req.ID}
	}
	if err != nil {
		return appError(req.ID, err)
	}
	return response{JSONRPC: "2.0", Result: out, ID: req.ID}
}

func decodeParams(raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		return true
	}
	return json.Unmarshal(raw, out) == nil
}

func invalidParams(id any) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: codeInvalidParams, Message: "invalid params"}, ID: id}
}

func appError(id any, err error) response {
	code := codeInternal
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = codeNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		code = codeInvalidParams
	case errors.Is(err, domain.ErrConflict):
		code = codeConflict
	}
	return response{JSONRPC: "2.0", Error: &rpcError{Code: code, Message: err.Error(), Kind: string(domain.KindOf(err))}, ID: id}
}
