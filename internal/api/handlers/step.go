package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/thinhdnn/ai-test-management/internal/api/middleware"
	"github.com/thinhdnn/ai-test-management/internal/domain"
	"github.com/thinhdnn/ai-test-management/internal/services/teststeps"
	"github.com/thinhdnn/ai-test-management/pkg/httputil"
)

// ReorderStepsRequest lists every step id of the test case in the new order
type ReorderStepsRequest struct {
	StepIDs []uuid.UUID `json:"step_ids"`
}

// ImportStepsRequest carries Playwright code to split into steps
type ImportStepsRequest struct {
	Code string `json:"code"`
}

// ImportStepsResponse is returned by an import
type ImportStepsResponse struct {
	Steps    []*domain.TestStep `json:"steps"`
	TestCase *domain.TestCase   `json:"test_case"`
}

// ListSteps handles GET /api/v1/test-cases/{id}/steps
func (h *TestCaseHandler) ListSteps(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	steps, err := h.svc.ListSteps(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to list steps", err)
		return
	}
	httputil.JSON(w, http.StatusOK, steps)
}

// CreateStep handles POST /api/v1/test-cases/{id}/steps
func (h *TestCaseHandler) CreateStep(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	var req teststeps.StepInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	change, err := h.svc.CreateStep(r.Context(), id, req, middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, "Failed to create step", err)
		return
	}
	httputil.JSON(w, http.StatusCreated, change)
}

// ImportSteps handles POST /api/v1/test-cases/{id}/steps/import
func (h *TestCaseHandler) ImportSteps(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	var req ImportStepsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	steps, tc, err := h.svc.ImportSteps(r.Context(), id, req.Code, middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, "Failed to import steps", err)
		return
	}
	httputil.JSON(w, http.StatusCreated, ImportStepsResponse{Steps: steps, TestCase: tc})
}

// ReorderSteps handles PUT /api/v1/test-cases/{id}/steps/reorder
func (h *TestCaseHandler) ReorderSteps(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	var req ReorderStepsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	change, err := h.svc.ReorderSteps(r.Context(), id, req.StepIDs, middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, "Failed to reorder steps", err)
		return
	}
	httputil.JSON(w, http.StatusOK, change)
}

// UpdateStep handles PUT /api/v1/test-cases/{id}/steps/{step_id}
func (h *TestCaseHandler) UpdateStep(w http.ResponseWriter, r *http.Request) {
	id, stepID, err := stepParams(r)
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	var req teststeps.UpdateStepInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	change, err := h.svc.UpdateStep(r.Context(), id, stepID, req, middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, "Failed to update step", err)
		return
	}
	httputil.JSON(w, http.StatusOK, change)
}

// ToggleStep handles POST /api/v1/test-cases/{id}/steps/{step_id}/toggle
func (h *TestCaseHandler) ToggleStep(w http.ResponseWriter, r *http.Request) {
	id, stepID, err := stepParams(r)
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	change, err := h.svc.ToggleStep(r.Context(), id, stepID, middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, "Failed to toggle step", err)
		return
	}
	httputil.JSON(w, http.StatusOK, change)
}

// DeleteStep handles DELETE /api/v1/test-cases/{id}/steps/{step_id}
func (h *TestCaseHandler) DeleteStep(w http.ResponseWriter, r *http.Request) {
	id, stepID, err := stepParams(r)
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	change, err := h.svc.DeleteStep(r.Context(), id, stepID, middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, "Failed to delete step", err)
		return
	}
	httputil.JSON(w, http.StatusOK, change)
}

func stepParams(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	stepID, err := httputil.URLParamUUID(r, "step_id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return id, stepID, nil
}
