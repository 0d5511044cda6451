package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/im-zhong/eduagent/pkg/types"
)

// StudentPerformance handles GET /api/v1/analytics/students/{id}/performance.
// The computed report is cached briefly and saved as an overall snapshot.
func (h *Handler) StudentPerformance(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.analytics != nil {
		if report, found := h.analytics.Get(id, "performance"); found {
			h.writeJSON(w, http.StatusOK, report)
			return
		}
	}

	perf, err := h.gateway.PerformanceSummary(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	report := map[string]any{
		"student_id":       id,
		"session_count":    perf.SessionCount,
		"average_score":    perf.AverageScore,
		"average_accuracy": perf.AverageAccuracy,
	}
	if h.analytics != nil {
		h.analytics.Set(id, "performance", report)
	}
	h.saveSnapshot(r, id, "overall", report)
	h.writeJSON(w, http.StatusOK, report)
}

// StudentMistakes handles GET /api/v1/analytics/students/{id}/mistakes.
func (h *Handler) StudentMistakes(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.analytics != nil {
		if report, found := h.analytics.Get(id, "mistakes"); found {
			h.writeJSON(w, http.StatusOK, report)
			return
		}
	}

	mistakes, err := h.gateway.MistakeFrequency(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	report := map[string]any{
		"student_id": id,
		"mistakes":   mistakes,
	}
	if h.analytics != nil {
		h.analytics.Set(id, "mistakes", report)
	}
	h.writeJSON(w, http.StatusOK, report)
}

// ClassPerformance handles GET /api/v1/analytics/classes/{id}/performance.
func (h *Handler) ClassPerformance(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.analytics != nil {
		if report, found := h.analytics.Get(id, "class"); found {
			h.writeJSON(w, http.StatusOK, report)
			return
		}
	}

	performances, err := h.gateway.ClassPerformance(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	report := map[string]any{
		"class_id": id,
		"students": performances,
	}
	if h.analytics != nil {
		h.analytics.Set(id, "class", report)
	}
	h.writeJSON(w, http.StatusOK, report)
}

// StudentSnapshot handles GET /api/v1/analytics/students/{id}/snapshot,
// returning the latest saved overall snapshot.
func (h *Handler) StudentSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	snapshot, err := h.gateway.LatestSnapshot(r.Context(), id, "overall")
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// saveSnapshot materializes a computed report. Best-effort; a failed save
// only loses history, not the response.
func (h *Handler) saveSnapshot(r *http.Request, studentID uuid.UUID, snapshotType string, report map[string]any) {
	snap := &types.AnalyticsSnapshot{
		ID:            uuid.New(),
		StudentID:     &studentID,
		SnapshotType:  snapshotType,
		AnalyticsData: report,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.gateway.SaveAnalyticsSnapshot(r.Context(), snap); err != nil {
		h.logger.Warn("analytics snapshot not saved", "student_id", studentID, "error", err)
	}
}
