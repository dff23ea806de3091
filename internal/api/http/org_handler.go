package http

import (
	"net/http"

	"creatoros-backend/internal/domain"
	"creatoros-backend/internal/security"
	"creatoros-backend/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type OrganizationHandler struct {
	orgSvc service.OrganizationService
}

func NewOrganizationHandler(orgSvc service.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{orgSvc: orgSvc}
}

func (h *OrganizationHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	org, err := h.orgSvc.CreateOrganization(r.Context(), req.Name, domain.PlanTier(req.PlanTier))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

// GetOrganization lets members read their own organization. System callers
// may read any.
func (h *OrganizationHandler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	claims, ok := ClaimsFromContext(r.Context())
	if !ok || (claims.Role != security.RoleSystem && claims.OrgID != id) {
		writeError(w, r, domain.ErrForbidden)
		return
	}
	if err := uuid.Validate(id); err != nil {
		writeError(w, r, domain.NewValidationError("id", "must be a UUID"))
		return
	}
	org, err := h.orgSvc.GetOrganization(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}
