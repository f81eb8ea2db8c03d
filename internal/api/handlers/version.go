package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/thinhdnn/ai-test-management/internal/api/middleware"
	"github.com/thinhdnn/ai-test-management/pkg/httputil"
)

// RecordVersionRequest optionally names the snapshot's version
type RecordVersionRequest struct {
	Version string `json:"version"`
}

// ListVersions handles GET /api/v1/test-cases/{id}/versions
func (h *TestCaseHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	versions, err := h.svc.ListVersions(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to list versions", err)
		return
	}
	httputil.JSON(w, http.StatusOK, versions)
}

// RecordVersion handles POST /api/v1/test-cases/{id}/versions
func (h *TestCaseHandler) RecordVersion(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	var req RecordVersionRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.ErrorFromDomain(w, err)
			return
		}
	}

	version, err := h.svc.RecordVersion(r.Context(), id, req.Version, middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, "Failed to record version", err)
		return
	}
	httputil.JSON(w, http.StatusCreated, version)
}

// GetVersion handles GET /api/v1/test-cases/{id}/versions/{version_id}
func (h *TestCaseHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	id, versionID, err := versionParams(r)
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	version, err := h.svc.GetVersion(r.Context(), id, versionID)
	if err != nil {
		h.fail(w, "Failed to get version", err)
		return
	}
	httputil.JSON(w, http.StatusOK, version)
}

// RestoreVersion handles POST /api/v1/test-cases/{id}/versions/{version_id}/restore
func (h *TestCaseHandler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	id, versionID, err := versionParams(r)
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	tc, err := h.svc.RestoreVersion(r.Context(), id, versionID, middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, "Failed to restore version", err)
		return
	}
	httputil.JSON(w, http.StatusOK, tc)
}

func versionParams(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	versionID, err := httputil.URLParamUUID(r, "version_id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return id, versionID, nil
}
