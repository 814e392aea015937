package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rfq-cli/internal/analytics"
	"github.com/sells-group/rfq-cli/internal/gate"
	"github.com/sells-group/rfq-cli/internal/model"
	"github.com/sells-group/rfq-cli/internal/scorer"
	"github.com/sells-group/rfq-cli/internal/store"
	"github.com/sells-group/rfq-cli/internal/triage"
)

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *triage.Service) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	topts := triage.DefaultOptions()
	topts.Now = func() time.Time { return fixedNow }
	svc := triage.New(st, nil, gate.NewAutoDeclineSwitch(false), topts)

	srv := httptest.NewServer(NewServer(svc, st, opts).Router())
	t.Cleanup(srv.Close)
	return srv, svc
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

const spaceForceJSON = `{"id":"rfq-sf","customer":"Space Force","estimated_value":701430,"competition_level":15,"tech_vertical":"Zero Trust"}`

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)
	assert.Contains(t, string(body), `"auto_decline_enabled":false`)
}

func TestHealth_StoreDown(t *testing.T) {
	_, svc := newTestServer(t, Options{})
	srv := httptest.NewServer(NewServer(svc, downPinger{}, Options{}).Router())
	defer srv.Close()

	resp, _ := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCreateGetAndList(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, body := do(t, http.MethodPost, srv.URL+"/rfqs", spaceForceJSON)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created model.RFQ
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "rfq-sf", created.ID)
	assert.Equal(t, 1, created.Quantity)

	resp, _ = do(t, http.MethodPost, srv.URL+"/rfqs", spaceForceJSON)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/rfqs/rfq-sf", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got model.RFQ
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "Space Force", got.Customer)

	resp, body = do(t, http.MethodGet, srv.URL+"/rfqs?limit=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []model.RFQ
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)

	resp, _ = do(t, http.MethodGet, srv.URL+"/rfqs?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRFQ_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, body := do(t, http.MethodGet, srv.URL+"/rfqs/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "rfq not found")
}

func TestWriteError_Status(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"not found", eris.Wrap(model.ErrNotFound, "triage: get rfq"), http.StatusNotFound, "rfq not found"},
		{"conflict", eris.Wrap(model.ErrConflict, "triage: record decision"), http.StatusConflict, "rfq modified concurrently"},
		{"attribute", model.NewAttributeError("quantity", "must be positive"), http.StatusBadRequest, "quantity"},
		{"other", errors.New("disk full"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/rfqs/x", nil), tt.err)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestCreateRFQ_BadBody(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, _ := do(t, http.MethodPost, srv.URL+"/rfqs", `{"estimated_value":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, http.MethodPost, srv.URL+"/rfqs", `{"estimated_value":-10}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "estimated_value")
}

func TestSetAttributes(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	do(t, http.MethodPost, srv.URL+"/rfqs", spaceForceJSON)

	resp, body := do(t, http.MethodPatch, srv.URL+"/rfqs/rfq-sf", `{"oem":"Cisco","quantity":4}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var rec model.RFQ
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, "Cisco", rec.OEM)
	assert.Equal(t, 4, rec.Quantity)
	assert.Equal(t, "Space Force", rec.Customer)

	resp, _ = do(t, http.MethodPatch, srv.URL+"/rfqs/rfq-sf", `{"competition_level":-3}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Derived fields are not patchable.
	resp, _ = do(t, http.MethodPatch, srv.URL+"/rfqs/rfq-sf", `{"score":100}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPatch, srv.URL+"/rfqs/nope", `{"oem":"Cisco"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEvaluateAndEvents(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	do(t, http.MethodPost, srv.URL+"/rfqs", spaceForceJSON)

	resp, body := do(t, http.MethodPost, srv.URL+"/rfqs/rfq-sf/evaluate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res triage.Result
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 80, res.Score)
	assert.Equal(t, scorer.RecommendGoHigh, res.Recommendation)
	assert.False(t, res.DecisionRecorded)

	resp, body = do(t, http.MethodGet, srv.URL+"/rfqs/rfq-sf/events", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []model.AuditEvent
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventEvaluation, events[0].Kind)
	assert.Equal(t, res.EventID, events[0].ID)

	resp, _ = do(t, http.MethodPost, srv.URL+"/rfqs/missing/evaluate", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/rfqs/missing/events", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEvaluateMany(t *testing.T) {
	srv, _ := newTestServer(t, Options{BatchConcurrency: 2})
	do(t, http.MethodPost, srv.URL+"/rfqs", spaceForceJSON)

	resp, body := do(t, http.MethodPost, srv.URL+"/rfqs/evaluate", `{"ids":["rfq-sf","ghost"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out []struct {
		RFQID  string         `json:"rfq_id"`
		Result *triage.Result `json:"result"`
		Error  string         `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out, 2)
	assert.Equal(t, "rfq-sf", out[0].RFQID)
	require.NotNil(t, out[0].Result)
	assert.Equal(t, 80, out[0].Result.Score)
	assert.Equal(t, "ghost", out[1].RFQID)
	assert.Contains(t, out[1].Error, "not found")

	resp, _ = do(t, http.MethodPost, srv.URL+"/rfqs/evaluate", `{"ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAutoDeclineFlow(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	do(t, http.MethodPost, srv.URL+"/rfqs", `{"id":"rfq-low","estimated_value":1500,"rfq_type":"renewal","quantity":1}`)

	resp, body := do(t, http.MethodPost, srv.URL+"/rfqs/rfq-low/evaluate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res triage.Result
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.AutoDeclineCandidate)
	assert.Equal(t, scorer.RecommendNoGo, res.Recommendation)
	assert.Equal(t, model.DecisionNone, res.Decision)

	resp, body = do(t, http.MethodPut, srv.URL+"/settings/auto-decline", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"enabled":true,"previous":false}`, string(body))

	_, body = do(t, http.MethodGet, srv.URL+"/settings/auto-decline", "")
	assert.JSONEq(t, `{"enabled":true}`, string(body))

	_, body = do(t, http.MethodPost, srv.URL+"/rfqs/rfq-low/evaluate", "")
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, model.DecisionNoGo, res.Decision)
	assert.True(t, res.DecisionRecorded)

	resp, _ = do(t, http.MethodPut, srv.URL+"/settings/auto-decline", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecordDecision(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	do(t, http.MethodPost, srv.URL+"/rfqs", spaceForceJSON)

	resp, body := do(t, http.MethodPut, srv.URL+"/rfqs/rfq-sf/decision", `{"decision":"no-go"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var rec model.RFQ
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, model.DecisionNoGo, rec.Decision)

	resp, _ = do(t, http.MethodPut, srv.URL+"/rfqs/rfq-sf/decision", `{"decision":"MAYBE"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/rfqs/nope/decision", `{"decision":"GO"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOEMOccurrencesAndBusinessCase(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	for i := 0; i < 5; i++ {
		ts := fixedNow.Add(-time.Duration(i) * 24 * time.Hour).Format(time.RFC3339)
		resp, body := do(t, http.MethodPost, srv.URL+"/oem-occurrences",
			`{"oem":"Dell","value":"10000","timestamp":"`+ts+`"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	}
	old := fixedNow.Add(-100 * 24 * time.Hour).Format(time.RFC3339)
	do(t, http.MethodPost, srv.URL+"/oem-occurrences", `{"oem":"Dell","value":10000,"timestamp":"`+old+`"}`)
	do(t, http.MethodPost, srv.URL+"/oem-occurrences", `{"oem":"HPE","value":500}`)

	resp, _ := do(t, http.MethodPost, srv.URL+"/oem-occurrences", `{"oem":"","value":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, http.MethodGet, srv.URL+"/analytics/business-case?min_occurrences=5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bc analytics.BusinessCase
	require.NoError(t, json.Unmarshal(body, &bc))
	require.Len(t, bc.Vendors, 1)
	assert.Equal(t, "Dell", bc.Vendors[0].OEM)
	assert.Equal(t, 5, bc.Vendors[0].OccurrenceCount)
	assert.Equal(t, "50000", bc.Vendors[0].TotalValue.String())

	_, body = do(t, http.MethodGet, srv.URL+"/analytics/business-case", "")
	require.NoError(t, json.Unmarshal(body, &bc))
	assert.Len(t, bc.Vendors, 2)

	resp, _ = do(t, http.MethodGet, srv.URL+"/analytics/business-case?min_total_value=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRuleTriggers(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	do(t, http.MethodPost, srv.URL+"/rfqs", `{"id":"a","estimated_value":1500,"rfq_type":"renewal"}`)
	do(t, http.MethodPost, srv.URL+"/rfqs", spaceForceJSON)
	do(t, http.MethodPost, srv.URL+"/rfqs/a/evaluate", "")
	do(t, http.MethodPost, srv.URL+"/rfqs/rfq-sf/evaluate", "")

	resp, body := do(t, http.MethodGet, srv.URL+"/analytics/rule-triggers?start=2026-05-01&end=2026-05-04", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		Summary         analytics.RuleTriggerSummary `json:"summary"`
		AutoDeclineRate float64                      `json:"auto_decline_rate"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 2, out.Summary.Totals.Events)
	assert.InDelta(t, 0.5, out.AutoDeclineRate, 0.0001)

	_, body = do(t, http.MethodGet, srv.URL+"/analytics/rule-triggers?end=2026-05-03", "")
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 0, out.Summary.Totals.Events)

	resp, _ = do(t, http.MethodGet, srv.URL+"/analytics/rule-triggers?start=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/analytics/rule-triggers?start=2026-05-04&end=2026-05-01", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRules(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, body := do(t, http.MethodGet, srv.URL+"/rules", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []ruleView
	require.NoError(t, json.Unmarshal(body, &list))
	require.NotEmpty(t, list)
	assert.Equal(t, "R001", list[0].ID)
	assert.Equal(t, model.ActionAutoDecline, list[0].Action)
}

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Options{RateLimitRPS: 0.001, RateLimitBurst: 2})

	var codes []int
	for i := 0; i < 3; i++ {
		resp, _ := do(t, http.MethodGet, srv.URL+"/rules", "")
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Health is outside the limiter.
	resp, _ := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t, Options{CORSOrigins: []string{"https://bids.example.com"}})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/rules", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://bids.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "https://bids.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
