package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/services/teststeps"
	"github.com/thinhdnn/ai-test-management/pkg/httputil"
)

// ProjectHandler handles project and fixture requests
type ProjectHandler struct {
	svc    *teststeps.Service
	logger *zap.Logger
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(svc *teststeps.Service, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req teststeps.CreateProjectInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	project, err := h.svc.CreateProject(r.Context(), req)
	if err != nil {
		h.fail(w, "Failed to create project", err)
		return
	}

	h.logger.Info("Project created", zap.String("project_id", project.ID.String()))
	httputil.JSON(w, http.StatusCreated, project)
}

// Get handles GET /api/v1/projects/{id}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	project, err := h.svc.GetProject(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to get project", err)
		return
	}
	httputil.JSON(w, http.StatusOK, project)
}

// ListFixtures handles GET /api/v1/projects/{project_id}/fixtures
func (h *ProjectHandler) ListFixtures(w http.ResponseWriter, r *http.Request) {
	projectID, err := httputil.URLParamUUID(r, "project_id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	fixtures, err := h.svc.ListFixtures(r.Context(), projectID)
	if err != nil {
		h.fail(w, "Failed to list fixtures", err)
		return
	}
	httputil.JSON(w, http.StatusOK, fixtures)
}

// CreateFixture handles POST /api/v1/projects/{project_id}/fixtures
func (h *ProjectHandler) CreateFixture(w http.ResponseWriter, r *http.Request) {
	projectID, err := httputil.URLParamUUID(r, "project_id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	var req teststeps.CreateFixtureInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	fixture, err := h.svc.CreateFixture(r.Context(), projectID, req)
	if err != nil {
		h.fail(w, "Failed to create fixture", err)
		return
	}

	h.logger.Info("Fixture created",
		zap.String("fixture_id", fixture.ID.String()),
		zap.String("project_id", projectID.String()),
	)
	httputil.JSON(w, http.StatusCreated, fixture)
}

func (h *ProjectHandler) fail(w http.ResponseWriter, msg string, err error) {
	logError(h.logger, msg, err)
	httputil.ErrorFromDomain(w, err)
}
