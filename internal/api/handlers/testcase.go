package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/api/middleware"
	"github.com/thinhdnn/ai-test-management/internal/services/teststeps"
	"github.com/thinhdnn/ai-test-management/pkg/httputil"
)

// TestCaseHandler handles test case, step and version requests
type TestCaseHandler struct {
	svc    *teststeps.Service
	logger *zap.Logger
}

// NewTestCaseHandler creates a new test case handler
func NewTestCaseHandler(svc *teststeps.Service, logger *zap.Logger) *TestCaseHandler {
	return &TestCaseHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/projects/{project_id}/test-cases
func (h *TestCaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, err := httputil.URLParamUUID(r, "project_id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	var req teststeps.CreateTestCaseInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	tc, err := h.svc.CreateTestCase(r.Context(), projectID, req, middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, "Failed to create test case", err)
		return
	}
	httputil.JSON(w, http.StatusCreated, tc)
}

// List handles GET /api/v1/projects/{project_id}/test-cases
func (h *TestCaseHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, err := httputil.URLParamUUID(r, "project_id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	testCases, err := h.svc.ListTestCases(r.Context(), projectID)
	if err != nil {
		h.fail(w, "Failed to list test cases", err)
		return
	}

	pagination := httputil.GetPagination(r, 20, 100)
	httputil.JSONWithMeta(w, http.StatusOK, httputil.Page(testCases, pagination), &httputil.Meta{
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		Total:      len(testCases),
		TotalPages: httputil.CalculateTotalPages(len(testCases), pagination.PerPage),
	})
}

// Get handles GET /api/v1/test-cases/{id}
func (h *TestCaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	tc, err := h.svc.GetTestCase(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to get test case", err)
		return
	}
	httputil.JSON(w, http.StatusOK, tc)
}

// Update handles PUT /api/v1/test-cases/{id}
func (h *TestCaseHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	var req teststeps.UpdateTestCaseInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	tc, err := h.svc.UpdateTestCase(r.Context(), id, req, middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, "Failed to update test case", err)
		return
	}
	httputil.JSON(w, http.StatusOK, tc)
}

// Consolidate handles POST /api/v1/test-cases/{id}/consolidate
func (h *TestCaseHandler) Consolidate(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	result, err := h.svc.Consolidate(r.Context(), id, middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, "Failed to consolidate test case", err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

func (h *TestCaseHandler) fail(w http.ResponseWriter, msg string, err error) {
	logError(h.logger, msg, err)
	httputil.ErrorFromDomain(w, err)
}
