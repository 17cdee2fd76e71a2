package handlers

import (
	"net/http"
	"path"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/middleware"
	"github.com/maxence-hue/meta-ads-analytics-sub000/pkg/zip"
)

// CreativeBundle streams a completed job's stored outputs as a zip:
// <format>.html, <format> previews and generated images under images/.
func (a *App) CreativeBundle(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	if a.Objects == nil {
		a.error(w, http.StatusNotFound, "not_found", "bundles are not available")
		return
	}
	job, err := a.Jobs.GetStatusForOwner(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if job.Status != domain.JobStatusCompleted || job.Result == nil {
		a.error(w, http.StatusConflict, "not_ready", "job has not completed")
		return
	}

	var assets []zip.Asset
	add := func(name, id string) error {
		if id == "" {
			return nil
		}
		data, err := a.Objects.Read(r.Context(), id)
		if err != nil {
			return err
		}
		assets = append(assets, zip.Asset{Filename: name + path.Ext(id), Data: data})
		return nil
	}
	for _, c := range job.Result.Creatives {
		if err := add(string(c.Format), c.MarkupID); err != nil {
			a.fail(w, r, err)
			return
		}
		if err := add(string(c.Format)+"-preview", c.PreviewID); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	slots := make([]string, 0, len(job.Result.ImageIDs))
	for slot := range job.Result.ImageIDs {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	for _, slot := range slots {
		if err := add("images/"+slot, job.Result.ImageIDs[slot]); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "job has no stored outputs")
		return
	}

	modified := job.UpdatedAt
	if job.CompletedAt != nil {
		modified = *job.CompletedAt
	}
	data, err := zip.Archive(assets, modified)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="creative-`+job.ID+`.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
