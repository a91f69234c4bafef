package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"household/internal/amqp"
	"household/internal/core"
	applog "household/internal/log"
	"household/internal/remote"
	"household/internal/remote/httpapi"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, httpapi.ErrorResponse{Error: msg})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large or unreadable")
		return nil, false
	}
	return data, true
}

// failWrite maps a ledger error to a response.
func (s *Server) failWrite(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, remote.ErrRejected) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	applog.FromContext(r.Context()).ErrorContext(r.Context(), "Ledger write failed",
		applog.FieldOperation, op,
		applog.FieldError, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) handleUpsertExpense(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	var body remote.Record
	if err := decodeValid(s.schemas.record, data, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := remote.FromWire(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.ledger.CreateOrUpdate(r.Context(), rec)
	if err != nil {
		s.failWrite(w, r, applog.OpCreate, err)
		return
	}

	resp := httpapi.UpsertResponse{Success: true, Created: res.Created, Updated: res.Updated}
	status := http.StatusOK
	switch {
	case res.Created:
		status = http.StatusCreated
	case !res.Updated:
		resp.Message = "Already up to date"
	}
	if res.Created || res.Updated {
		s.invalidateMonths()
		s.announce(r.Context(), amqp.NewChangeNotice(amqp.OpUpsert, rec.ID, monthKey(rec.Date), rec.DeviceID))
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expense upserted",
		applog.FieldRecordID, rec.ID,
		applog.FieldDeviceID, rec.DeviceID,
		"created", res.Created,
		"updated", res.Updated)
	writeJSON(w, status, resp)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	p := core.PeriodOf(s.now())
	if m := strings.TrimSpace(r.URL.Query().Get("month")); m != "" {
		parsed, err := core.ParsePeriod(m)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		p = parsed
	}

	key := p.String()
	if cached, ok := s.months.Get(key); ok {
		writeJSON(w, http.StatusOK, httpapi.ListResponse{Expenses: cached})
		return
	}

	gen := s.monthsGeneration()
	records, err := s.ledger.FetchByPeriod(r.Context(), p)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "List expenses failed",
			applog.FieldPeriod, key,
			applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]remote.Record, 0, len(records))
	for _, rec := range records {
		out = append(out, remote.ToWire(rec))
	}
	s.cacheMonth(gen, key, out)
	writeJSON(w, http.StatusOK, httpapi.ListResponse{Expenses: out})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	var body remote.UpdateRequest
	if err := decodeValid(s.schemas.patch, data, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updatedAt, err := remote.ParseTime(body.UpdatedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "updatedAt must be RFC 3339")
		return
	}

	res, err := s.ledger.Update(r.Context(), id, body.Patch, updatedAt, body.DeviceID)
	if err != nil {
		s.failWrite(w, r, applog.OpUpdate, err)
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusNotFound, httpapi.UpdateResponse{Success: false})
		return
	}
	if res.Updated {
		s.invalidateMonths()
		s.announce(r.Context(), amqp.NewChangeNotice(amqp.OpUpdate, id, s.monthOf(r, id), body.DeviceID))
	}
	writeJSON(w, http.StatusOK, httpapi.UpdateResponse{Success: true, Updated: res.Updated})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	month := s.monthOf(r, id)

	res, err := s.ledger.Delete(r.Context(), id)
	if err != nil {
		s.failWrite(w, r, applog.OpDelete, err)
		return
	}
	s.invalidateMonths()
	if month != "" {
		s.announce(r.Context(), amqp.NewChangeNotice(amqp.OpDelete, id, month, ""))
	}
	writeJSON(w, http.StatusOK, httpapi.DeleteResponse{Success: res.Success})
}

// monthOf returns the YYYY-MM of the stored record, or "" if unknown.
func (s *Server) monthOf(r *http.Request, id string) string {
	rec, ok, err := s.ledger.Get(r.Context(), id)
	if err != nil || !ok {
		return ""
	}
	return monthKey(rec.Date)
}

func monthKey(date string) string {
	if len(date) < 7 {
		return ""
	}
	return date[:7]
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	p, err := core.ParsePeriod(r.PathValue("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	amount, ok, err := s.ledger.GetBudget(r.Context(), p)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Get budget failed",
			applog.FieldPeriod, p.String(),
			applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no budget for "+p.String())
		return
	}
	writeJSON(w, http.StatusOK, httpapi.BudgetBody{Month: p.String(), Amount: amount})
}

func (s *Server) handlePutBudget(w http.ResponseWriter, r *http.Request) {
	p, err := core.ParsePeriod(r.PathValue("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	var body httpapi.BudgetBody
	if err := decodeValid(s.schemas.budget, data, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.SetBudget(r.Context(), p, body.Amount); err != nil {
		s.failWrite(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, httpapi.BudgetBody{Month: p.String(), Amount: body.Amount})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Ping(r.Context()); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Ledger not ready", applog.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
