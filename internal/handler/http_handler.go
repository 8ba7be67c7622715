package handler

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pesio-ai/be-doc-validations/internal/platform/errors"
	"github.com/pesio-ai/be-doc-validations/internal/platform/logger"
	"github.com/pesio-ai/be-doc-validations/internal/service"
	"github.com/pesio-ai/be-doc-validations/internal/workflow"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// HTTPHandler serves the validation REST API.
type HTTPHandler struct {
	service  *service.ValidationService
	validate *validator.Validate
	log      *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(service *service.ValidationService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.Named("http"),
	}
}

// ── Request bodies ────────────────────────────────────────────────────────────

type createFlowBody struct {
	CompanyID string     `json:"company_id"`
	EntityID  string     `json:"entity_id"`
	Steps     []stepBody `json:"steps" validate:"dive"`
}

type stepBody struct {
	Order      int    `json:"order" validate:"gt=0"`
	ApproverID string `json:"approver_id" validate:"required"`
}

type decisionBody struct {
	ActorID string `json:"actor_id" validate:"required"`
	Reason  string `json:"reason" validate:"max=4000"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

type stepResponse struct {
	ID         string    `json:"id"`
	Order      int       `json:"order"`
	ApproverID string    `json:"approver_id"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type flowResponse struct {
	DocumentID string         `json:"document_id"`
	FlowID     string         `json:"flow_id"`
	Status     string         `json:"status"`
	IsActive   bool           `json:"is_active"`
	Steps      []stepResponse `json:"steps"`
}

type statusResponse struct {
	DocumentID    string         `json:"document_id"`
	HasValidation bool           `json:"has_validation"`
	Status        string         `json:"status"`
	FlowID        string         `json:"flow_id,omitempty"`
	IsActive      bool           `json:"is_active"`
	IsCompleted   bool           `json:"is_completed"`
	IsRejected    bool           `json:"is_rejected"`
	Steps         []stepResponse `json:"steps"`
	CreatedAt     *time.Time     `json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `json:"updated_at,omitempty"`
}

type approveResponse struct {
	DocumentID     string `json:"document_id"`
	ApprovedOrders []int  `json:"approved_orders"`
	FullyApproved  bool   `json:"fully_approved"`
	Status         string `json:"status"`
}

type rejectResponse struct {
	DocumentID    string `json:"document_id"`
	RejectedOrder int    `json:"rejected_order"`
	Status        string `json:"status"`
}

type actionResponse struct {
	ID        string    `json:"id"`
	StepID    string    `json:"step_id"`
	StepOrder int       `json:"step_order"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type pendingResponse struct {
	DocumentID    string    `json:"document_id"`
	CompanyID     string    `json:"company_id"`
	EntityID      string    `json:"entity_id"`
	FlowID        string    `json:"flow_id"`
	StepOrder     int       `json:"step_order"`
	FlowCreatedAt time.Time `json:"flow_created_at"`
}

type statsResponse struct {
	Approved     int `json:"approved"`
	Rejected     int `json:"rejected"`
	Pending      int `json:"pending"`
	TotalActions int `json:"total_actions"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ── Handlers ──────────────────────────────────────────────────────────────────

// CreateFlow handles POST /api/v1/documents/{documentID}/validation-flow
func (h *HTTPHandler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var body createFlowBody
	if !h.decode(w, r, &body) {
		return
	}

	specs := make([]workflow.StepSpec, len(body.Steps))
	for i, s := range body.Steps {
		specs[i] = workflow.StepSpec{Order: s.Order, ApproverID: s.ApproverID}
	}

	agg, err := h.service.CreateFlow(r.Context(), &service.CreateFlowRequest{
		DocumentID: chi.URLParam(r, "documentID"),
		CompanyID:  body.CompanyID,
		EntityID:   body.EntityID,
		Steps:      specs,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, flowResponse{
		DocumentID: agg.Document.ID,
		FlowID:     agg.Flow.ID,
		Status:     agg.Document.ValidationStatus.String(),
		IsActive:   agg.Flow.IsActive,
		Steps:      toStepResponses(agg.Steps),
	})
}

// Approve handles POST /api/v1/documents/{documentID}/approve
func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var body decisionBody
	if !h.decode(w, r, &body) {
		return
	}

	res, err := h.service.Approve(r.Context(), &service.DecisionRequest{
		DocumentID: chi.URLParam(r, "documentID"),
		ActorID:    body.ActorID,
		Reason:     body.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, approveResponse{
		DocumentID:     res.DocumentID,
		ApprovedOrders: res.ApprovedOrders,
		FullyApproved:  res.FullyApproved,
		Status:         res.Status.String(),
	})
}

// Reject handles POST /api/v1/documents/{documentID}/reject
func (h *HTTPHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var body decisionBody
	if !h.decode(w, r, &body) {
		return
	}

	res, err := h.service.Reject(r.Context(), &service.DecisionRequest{
		DocumentID: chi.URLParam(r, "documentID"),
		ActorID:    body.ActorID,
		Reason:     body.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rejectResponse{
		DocumentID:    res.DocumentID,
		RejectedOrder: res.RejectedOrder,
		Status:        res.Status.String(),
	})
}

// GetStatus handles GET /api/v1/documents/{documentID}/validation-status
func (h *HTTPHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetStatus(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := statusResponse{
		DocumentID:    view.DocumentID,
		HasValidation: view.HasValidation,
		Status:        view.Status.String(),
		FlowID:        view.FlowID,
		IsActive:      view.IsActive,
		IsCompleted:   view.IsCompleted,
		IsRejected:    view.IsRejected,
		Steps:         toStepResponses(view.Steps),
	}
	if view.HasValidation {
		resp.CreatedAt = &view.CreatedAt
		resp.UpdatedAt = &view.UpdatedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHistory handles GET /api/v1/documents/{documentID}/validation-history
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	actions, err := h.service.GetHistory(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]actionResponse, len(actions))
	for i, a := range actions {
		out[i] = actionResponse{
			ID:        a.ID,
			StepID:    a.StepID,
			StepOrder: a.StepOrder,
			ActorID:   a.ActorID,
			Action:    string(a.Action),
			Reason:    a.Reason,
			CreatedAt: a.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": out})
}

// GetPendingApprovals handles GET /api/v1/approvals/pending?approver_id=
func (h *HTTPHandler) GetPendingApprovals(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.GetPendingApprovals(r.Context(), r.URL.Query().Get("approver_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]pendingResponse, len(pending))
	for i, p := range pending {
		out[i] = pendingResponse{
			DocumentID:    p.DocumentID,
			CompanyID:     p.CompanyID,
			EntityID:      p.EntityID,
			FlowID:        p.FlowID,
			StepOrder:     p.StepOrder,
			FlowCreatedAt: p.FlowCreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": out, "total": len(out)})
}

// GetApprovalStats handles GET /api/v1/approvals/stats?actor_id=
func (h *HTTPHandler) GetApprovalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetApprovalStats(r.Context(), r.URL.Query().Get("actor_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Approved:     stats.Approved,
		Rejected:     stats.Rejected,
		Pending:      stats.Pending,
		TotalActions: stats.TotalActions,
	})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.writeError(w, r, errors.InvalidInput("body", fmt.Sprintf("exceeds %d bytes", maxBodyBytes)))
			return false
		}
		h.writeError(w, r, errors.InvalidInput("body", "malformed JSON"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			h.writeError(w, r, errors.InvalidInput(fe.Namespace(), "failed "+fe.Tag()+" check"))
			return false
		}
		h.writeError(w, r, errors.InvalidInput("body", err.Error()))
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	status := httpStatus(code)

	body := errorBody{Code: string(code), Message: err.Error()}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		body.Field = appErr.Field
	}

	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		if status == http.StatusInternalServerError {
			body.Message = "internal error"
		}
	} else {
		h.log.Debug().Err(err).Str("path", r.URL.Path).Msg("Request rejected")
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Error: body})
}

func httpStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toStepResponses(steps []*workflow.Step) []stepResponse {
	out := make([]stepResponse, len(steps))
	for i, s := range steps {
		out[i] = stepResponse{
			ID:         s.ID,
			Order:      s.Order,
			ApproverID: s.ApproverID,
			Status:     string(s.Status),
			UpdatedAt:  s.UpdatedAt,
		}
	}
	return out
}
