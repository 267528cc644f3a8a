package handlers

import "net/http"

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if a.Router != nil {
		providers := make([]map[string]any, 0)
		for _, h := range a.Router.Health() {
			providers = append(providers, map[string]any{
				"provider":             h.ProviderID,
				"consecutive_failures": h.ConsecutiveFailures,
				"last_success_at":      h.LastSuccessAt,
				"last_failure_at":      h.LastFailureAt,
			})
		}
		body["providers"] = providers
	}
	a.json(w, http.StatusOK, body)
}
