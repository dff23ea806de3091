package http

import (
	"net/http"
	"strconv"
	"strings"

	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/service"
)

const idempotencyKeyHeader = "Idempotency-Key"

type LedgerHandler struct {
	ledgerSvc service.LedgerService
}

func NewLedgerHandler(ledgerSvc service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerSvc: ledgerSvc}
}

func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	balance, err := h.ledgerSvc.GetBalance(r.Context(), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (h *LedgerHandler) Consume(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	var req ConsumeCreditsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.ledgerSvc.Consume(r.Context(), orgID, req.ToServiceRequest(idempotencyKey(r)))
	writeLedgerResult(w, r, result, err)
}

func (h *LedgerHandler) Grant(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	var req GrantCreditsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.ledgerSvc.Grant(r.Context(), orgID, req.ToServiceRequest(idempotencyKey(r)))
	writeLedgerResult(w, r, result, err)
}

func (h *LedgerHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	var req GrantCreditsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.ledgerSvc.Purchase(r.Context(), orgID, req.ToServiceRequest(idempotencyKey(r)))
	writeLedgerResult(w, r, result, err)
}

func (h *LedgerHandler) Refund(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	var req RefundCreditsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.ledgerSvc.Refund(r.Context(), orgID, service.RefundRequest{
		EntryID: req.EntryID,
		Amount:  req.Amount,
		Reason:  req.Reason,
	})
	writeLedgerResult(w, r, result, err)
}

func (h *LedgerHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	var req AdjustCreditsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	result, err := h.ledgerSvc.Adjust(r.Context(), orgID, service.AdjustRequest{
		Amount:         req.Amount,
		Description:    req.Description,
		Metadata:       req.Metadata,
		IdempotencyKey: idempotencyKey(r),
	})
	writeLedgerResult(w, r, result, err)
}

func (h *LedgerHandler) History(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.ledgerSvc.History(r.Context(), orgID, service.HistoryFilter{
		Kind:   domain.TransactionKind(q.Get("kind")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *LedgerHandler) UsageSummary(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	windowDays, err := queryInt(r.URL.Query().Get("window_days"), "window_days")
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := h.ledgerSvc.UsageSummary(r.Context(), orgID, windowDays)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// writeLedgerResult answers 201 for a new entry and 200 for a replay.
func writeLedgerResult(w http.ResponseWriter, r *http.Request, result *domain.LedgerResult, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// requireOrg resolves the caller's organization; tokens without one cannot use
// org-scoped routes.
func requireOrg(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID := OrgIDFromContext(r.Context())
	if orgID == "" {
		writeError(w, r, domain.ErrForbidden)
		return "", false
	}
	return orgID, true
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		writeError(w, r, err)
		return false
	}
	if err := validateRequest(dst); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
}

func queryInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(field, "must be an integer")
	}
	return n, nil
}
