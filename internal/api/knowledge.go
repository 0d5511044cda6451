package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/im-zhong/eduagent/internal/metrics"
	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
	"github.com/im-zhong/eduagent/rag"
)

// GetTextbook handles GET /api/v1/textbooks/{id}.
func (h *Handler) GetTextbook(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	textbook, err := h.gateway.GetTextbook(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, textbook)
}

// GetExtractionStatus handles GET /api/v1/textbooks/{id}/extraction.
func (h *Handler) GetExtractionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	textbook, err := h.gateway.GetTextbook(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"textbook_id":  textbook.ID,
		"status":       textbook.ExtractionStatus,
		"processed_at": textbook.ProcessedAt,
		"summary":      textbook.ExtractedData,
	})
}

// knowledgeGraphNode is one knowledge point with its attached targets and
// mistakes.
type knowledgeGraphNode struct {
	KnowledgePoint types.KnowledgePoint  `json:"knowledge_point"`
	AbilityTargets []types.AbilityTarget `json:"ability_targets,omitempty"`
	CommonMistakes []types.CommonMistake `json:"common_mistakes,omitempty"`
}

// GetKnowledgeGraph handles GET /api/v1/textbooks/{id}/knowledge.
func (h *Handler) GetKnowledgeGraph(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	// 404 for an unknown textbook, not an empty graph.
	if _, err := h.gateway.GetTextbook(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	points, err := h.gateway.ListKnowledgePoints(r.Context(), &id, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}

	nodes := make([]knowledgeGraphNode, 0, len(points))
	for _, kp := range points {
		targets, err := h.gateway.ListAbilityTargets(r.Context(), kp.ID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		mistakes, err := h.gateway.ListCommonMistakes(r.Context(), kp.ID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		nodes = append(nodes, knowledgeGraphNode{
			KnowledgePoint: kp,
			AbilityTargets: targets,
			CommonMistakes: mistakes,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"textbook_id":      id,
		"knowledge_points": nodes,
	})
}

// SearchKnowledge handles GET /api/v1/knowledge/search?q=...&textbook_id=...&limit=N.
func (h *Handler) SearchKnowledge(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, eduerrors.NewInvalidRequestError("api", "query parameter q is required"))
		return
	}

	opts := rag.RetrievalOptions{}
	if raw := r.URL.Query().Get("textbook_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, eduerrors.NewInvalidRequestError("api", "textbook_id must be a UUID"))
			return
		}
		opts.TextbookID = &id
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, eduerrors.NewInvalidRequestError("api", "limit must be a non-negative integer"))
			return
		}
		opts.Limit = limit
	}

	start := time.Now()
	bundle, err := h.retrieval.RetrieveRelevantKnowledge(r.Context(), query, opts)
	if err != nil {
		metrics.RecordRetrieval(h.retrieval.Name(), "error", time.Since(start))
		h.writeError(w, err)
		return
	}
	metrics.RecordRetrieval(h.retrieval.Name(), "success", time.Since(start))
	h.writeJSON(w, http.StatusOK, bundle)
}
