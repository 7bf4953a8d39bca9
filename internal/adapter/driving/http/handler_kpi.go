package httphandler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ericfisherdev/devpulse/internal/domain/model"
)

func (h *Handler) kpiRoutes(r chi.Router) {
	r.Use(requirePermission(model.PermKPIsRead))

	r.Get("/summary", kpiEndpoint(h, h.kpis.Summary))
	r.Get("/pull-requests/status", kpiEndpoint(h, h.kpis.PullRequestStatus))
	r.Get("/cycle-time", kpiEndpoint(h, h.kpis.CycleTimeTrend))
	r.Get("/developers", kpiEndpoint(h, h.kpis.DeveloperActivity))
	r.Get("/teams", kpiEndpoint(h, h.dimensionActivity(model.DimensionTeam)))
	r.Get("/roles", kpiEndpoint(h, h.dimensionActivity(model.DimensionRole)))
	r.Get("/stacks", kpiEndpoint(h, h.dimensionActivity(model.DimensionStack)))
	r.Get("/reviews/votes", kpiEndpoint(h, h.kpis.ReviewVotes))
	r.Get("/code-changes", kpiEndpoint(h, h.kpis.CodeChangeTrend))
}

// kpiEndpoint adapts a KPI query to a handler that parses the filter from
// the query string.
func kpiEndpoint[T any](h *Handler, query func(context.Context, model.KPIFilter) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := kpiFilterFromQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, err.Error())
			return
		}

		result, err := query(r.Context(), filter)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *Handler) dimensionActivity(kind model.DimensionKind) func(context.Context, model.KPIFilter) ([]model.DimensionActivity, error) {
	return func(ctx context.Context, f model.KPIFilter) ([]model.DimensionActivity, error) {
		return h.kpis.DimensionActivity(ctx, kind, f)
	}
}
