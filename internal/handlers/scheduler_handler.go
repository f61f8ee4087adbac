package handlers

import (
	"net/http"
)

// SchedulerHandler handles scheduler-related endpoints
type SchedulerHandler struct {
	scheduler JobStatusLister
}

// NewSchedulerHandler creates a new scheduler handler. scheduler may be nil
// when scheduling is disabled.
func NewSchedulerHandler(scheduler JobStatusLister) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler}
}

// JobsHandler lists scheduled jobs with their last and next run
func (h *SchedulerHandler) JobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	if h.scheduler == nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{"enabled": false, "jobs": []interface{}{}})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"enabled": true, "jobs": h.scheduler.GetAllJobStatuses()})
}
