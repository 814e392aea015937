package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sells-group/rfq-cli/internal/model"
	"github.com/sells-group/rfq-cli/internal/rules"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  "store unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"auto_decline_enabled": s.svc.AutoDeclineEnabled(),
	})
}

func (s *Server) handleCreateRFQ(w http.ResponseWriter, r *http.Request) {
	var in model.RFQ
	if err := decodeJSON(w, r, &in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	rec, err := s.svc.CreateRFQ(r.Context(), &in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListRFQs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.svc.ListRFQs(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.RFQ{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRFQ(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.GetRFQ(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSetAttributes(w http.ResponseWriter, r *http.Request) {
	var p model.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	rec, err := s.svc.SetAttributes(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Evaluate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type batchItem struct {
	RFQID  string `json:"rfq_id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleEvaluateMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		writeJSONError(w, http.StatusBadRequest, "ids is required")
		return
	}

	results := s.svc.EvaluateMany(r.Context(), req.IDs, s.opts.BatchConcurrency)
	out := make([]batchItem, len(results))
	for i, br := range results {
		out[i] = batchItem{RFQID: br.RFQID}
		if br.Err != nil {
			out[i].Error = br.Err.Error()
			continue
		}
		out[i].Result = br.Result
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRecordDecision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision model.Decision `json:"decision"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	d := model.Decision(strings.ToUpper(strings.TrimSpace(string(req.Decision))))
	rec, err := s.svc.RecordDecision(r.Context(), chi.URLParam(r, "id"), d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := s.svc.ListEvents(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []model.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleTrackOEM(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OEM       string          `json:"oem"`
		Value     decimal.Decimal `json:"value"`
		Timestamp time.Time       `json:"timestamp"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	ev, err := s.svc.TrackOEMOccurrence(r.Context(), req.OEM, req.Value, req.Timestamp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleBusinessCase(w http.ResponseWriter, r *http.Request) {
	minOcc, err := queryInt(r, "min_occurrences", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	minValue := decimal.Zero
	if raw := r.URL.Query().Get("min_total_value"); raw != "" {
		minValue, err = decimal.NewFromString(raw)
		if err != nil || minValue.IsNegative() {
			writeError(w, r, model.NewAttributeError("min_total_value", "must be a non-negative number"))
			return
		}
	}
	bc, err := s.svc.BusinessCase(r.Context(), minOcc, minValue)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bc)
}

func (s *Server) handleRuleTriggers(w http.ResponseWriter, r *http.Request) {
	start, err := queryTime(r, "start")
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := queryTime(r, "end")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		writeError(w, r, model.NewAttributeError("end", "must not be before start"))
		return
	}
	sum, err := s.svc.RuleTriggerSummary(r.Context(), start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":           sum,
		"auto_decline_rate": sum.AutoDeclineRate(),
	})
}

type ruleView struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Action   model.Action `json:"action"`
	Requires []string     `json:"requires,omitempty"`
}

func (s *Server) handleRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ruleViews(s.svc.Catalog()))
}

func ruleViews(list []rules.Rule) []ruleView {
	out := make([]ruleView, len(list))
	for i, rl := range list {
		out[i] = ruleView{ID: rl.ID, Name: rl.Name, Action: rl.Action, Requires: rl.Requires}
	}
	return out
}

func (s *Server) handleGetAutoDecline(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.svc.AutoDeclineEnabled()})
}

func (s *Server) handleSetAutoDecline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Enabled == nil {
		writeJSONError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	prev := s.svc.SetAutoDecline(*req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{
		"enabled":  *req.Enabled,
		"previous": prev,
	})
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		if key == "end" {
			// A bare end date covers the whole day.
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, nil
	}
	return time.Time{}, model.NewAttributeError(key, "must be RFC 3339 or YYYY-MM-DD")
}
