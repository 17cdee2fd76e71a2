package handlers

import (
	"net/http"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
)

// ListTemplates lists the catalog, optionally filtered by ?format= and ?category=.
func (a *App) ListTemplates(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	category := r.URL.Query().Get("category")
	out := make([]domain.Template, 0)
	for _, t := range a.Templates.List() {
		if format != "" && string(t.Format) != format {
			continue
		}
		if category != "" && t.Category != category {
			continue
		}
		out = append(out, t)
	}
	a.json(w, http.StatusOK, map[string]any{"templates": out})
}
