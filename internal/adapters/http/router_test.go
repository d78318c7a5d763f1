package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/prathameshpawar06/stockbridge/internal/adapters/db/sqlite"
	"github.com/prathameshpawar06/stockbridge/internal/application"
	"github.com/prathameshpawar06/stockbridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "router_test.db"))
	require.NoError(t, err)
	_, err = sqlite.RunMigrations(context.Background(), db)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := application.NewTemplateService(
		sqlite.NewSchemaRepository(db),
		sqlite.NewInstanceRepository(db),
		sqlite.NewAuditRepository(db),
		logger,
	)
	srv := httptest.NewServer(NewRouter(svc, logger))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestInstanceLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	var schema domain.SchemaDefinition
	status := doJSON(t, http.MethodPost, srv.URL+"/api/schemas", map[string]any{
		"name": "Property",
		"sections": []map[string]any{{
			"name":     "Coverages",
			"sequence": 1,
			"columns": []map[string]any{
				{"name": "Covered", "sequence": 1, "data_type": "bool"},
				{"name": "Notes", "sequence": 2},
			},
		}},
	}, map[string]string{"X-Actor": "tester"}, &schema)
	require.Equal(t, http.StatusCreated, status)
	require.Len(t, schema.Sections, 1)

	var inst domain.Instance
	status = doJSON(t, http.MethodPost, srv.URL+"/api/instances", map[string]any{"schema_id": schema.ID, "owner_ref": "POL-9"}, nil, &inst)
	require.Equal(t, http.StatusCreated, status)

	inst.Sections[0].Columns[0].Cells = []domain.Cell{{RowIndex: 1, Value: "-1"}, {RowIndex: 2, Value: ""}, {RowIndex: 3, Value: "0"}}
	inst.Sections[0].Columns[1].Cells = []domain.Cell{{RowIndex: 1, Value: "flood"}, {RowIndex: 2, Value: "ignored"}}
	instanceURL := srv.URL + "/api/instances/" + strconv.FormatUint(uint64(inst.ID), 10)
	var updated domain.Instance
	status = doJSON(t, http.MethodPut, instanceURL, map[string]any{"sections": inst.Sections}, nil, &updated)
	require.Equal(t, http.StatusOK, status)
	require.NotZero(t, updated.Sections[0].Columns[0].Cells[0].ID)

	var tables []domain.Table
	status = doJSON(t, http.MethodGet, instanceURL+"/table", nil, nil, &tables)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, tables, 1)
	assert.Equal(t, []domain.TableRow{
		{RowIndex: 1, Cells: []string{"Yes", "flood"}},
		{RowIndex: 3, Cells: []string{"No", ""}},
	}, tables[0].Rows)

	var refused map[string]any
	status = doJSON(t, http.MethodPut, instanceURL, map[string]any{"sections": []any{}}, nil, &refused)
	assert.Equal(t, http.StatusBadRequest, status)

	var cleared domain.Instance
	status = doJSON(t, http.MethodPost, instanceURL+"/clear", nil, nil, &cleared)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, cleared.Sections)

	var logs []domain.AuditLog
	status = doJSON(t, http.MethodGet, srv.URL+"/api/audit/logs", nil, nil, &logs)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, logs, 4)
	assert.Equal(t, "instance.clear", logs[0].Action)
	assert.Equal(t, "tester", logs[3].Actor)
}

func TestErrorKindsMapToStatusCodes(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]any
	status := doJSON(t, http.MethodGet, srv.URL+"/api/instances/42", nil, nil, &body)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(domain.KindNotFound), body["kind"])

	status = doJSON(t, http.MethodPost, srv.URL+"/api/schemas", map[string]any{"name": ""}, nil, &body)
	assert.Equal(t, http.StatusBadRequest, status)

	status = doJSON(t, http.MethodPost, srv.URL+"/api/columns/delete", map[string]any{"column_ids": []uint{77}}, nil, &body)
	assert.Equal(t, http.StatusNotFound, status)

	status = doJSON(t, http.MethodPost, srv.URL+"/api/sections/1/rows/delete", map[string]any{}, nil, &body)
	assert.Equal(t, http.StatusBadRequest, status)

	status = doJSON(t, http.MethodGet, srv.URL+"/api/schemas/abc", nil, nil, &body)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCreateSchemaHonoursIdempotencyKey(t *testing.T) {
	srv := newTestServer(t)
	headers := map[string]string{"Idempotency-Key": "6f1c8e5e-2f0b-4d9c-9f55-0a3b2f8c1d77"}

	var first, second domain.SchemaDefinition
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, srv.URL+"/api/schemas", map[string]any{"name": "A"}, headers, &first))
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, srv.URL+"/api/schemas", map[string]any{"name": "A"}, headers, &second))
	assert.Equal(t, first.ID, second.ID)

	var page domain.SchemaPage
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/schemas", nil, nil, &page))
	assert.Equal(t, int64(1), page.Total)
}

func TestUIDeleteRowRendersFragment(t *testing.T) {
	srv := newTestServer(t)

	var schema domain.SchemaDefinition
	doJSON(t, http.MethodPost, srv.URL+"/api/schemas", map[string]any{
		"name":     "S",
		"sections": []map[string]any{{"name": "Main", "columns": []map[string]any{{"name": "Key"}}}},
	}, nil, &schema)
	var inst domain.Instance
	doJSON(t, http.MethodPost, srv.URL+"/api/instances", map[string]any{"schema_id": schema.ID}, nil, &inst)
	inst.Sections[0].Columns[0].Cells = []domain.Cell{{RowIndex: 1, Value: "keep"}, {RowIndex: 2, Value: "drop"}}
	instanceURL := srv.URL + "/api/instances/" + strconv.FormatUint(uint64(inst.ID), 10)
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPut, instanceURL, map[string]any{"sections": inst.Sections}, nil, nil))

	signals := `{"instanceId":` + strconv.FormatUint(uint64(inst.ID), 10) +
		`,"sectionId":` + strconv.FormatUint(uint64(inst.Sections[0].ID), 10) + `,"rowIndex":2}`
	resp, err := http.Post(srv.URL+"/ui/rows/delete", "application/json", strings.NewReader(signals))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.Contains(t, string(raw), "deleted 1 cells")
	assert.Contains(t, string(raw), "<td>keep</td>")
	assert.NotContains(t, string(raw), "<td>drop</td>")

	page, err := http.Get(srv.URL + "/instances/" + strconv.FormatUint(uint64(inst.ID), 10) + "/table")
	require.NoError(t, err)
	defer page.Body.Close()
	assert.Equal(t, http.StatusOK, page.StatusCode)
}

func TestUIDeleteRowRejectsSectionOfAnotherInstance(t *testing.T) {
	srv := newTestServer(t)

	var schema domain.SchemaDefinition
	doJSON(t, http.MethodPost, srv.URL+"/api/schemas", map[string]any{
		"name":     "S",
		"sections": []map[string]any{{"name": "Main", "columns": []map[string]any{{"name": "Key"}}}},
	}, nil, &schema)
	var mine, other domain.Instance
	doJSON(t, http.MethodPost, srv.URL+"/api/instances", map[string]any{"schema_id": schema.ID}, nil, &mine)
	doJSON(t, http.MethodPost, srv.URL+"/api/instances", map[string]any{"schema_id": schema.ID}, nil, &other)
	other.Sections[0].Columns[0].Cells = []domain.Cell{{RowIndex: 1, Value: "theirs"}}
	otherURL := srv.URL + "/api/instances/" + strconv.FormatUint(uint64(other.ID), 10)
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPut, otherURL, map[string]any{"sections": other.Sections}, nil, nil))

	signals := `{"instanceId":` + strconv.FormatUint(uint64(mine.ID), 10) +
		`,"sectionId":` + strconv.FormatUint(uint64(other.Sections[0].ID), 10) + `,"rowIndex":1}`
	resp, err := http.Post(srv.URL+"/ui/rows/delete", "application/json", strings.NewReader(signals))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var reloaded domain.Instance
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, otherURL, nil, nil, &reloaded))
	require.Len(t, reloaded.Sections[0].Columns[0].Cells, 1)
	assert.Equal(t, "theirs", reloaded.Sections[0].Columns[0].Cells[0].Value)
}
