package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/im-zhong/eduagent/agent"
	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
)

// dispatch routes a payload through the agent manager and writes the
// response or the manager's recovery envelope.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, requestType, action string) {
	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	h.dispatchPayload(w, r, requestType, action, payload)
}

func (h *Handler) dispatchPayload(w http.ResponseWriter, r *http.Request, requestType, action string, payload map[string]any) {
	resp, err := h.manager.HandleRequest(r.Context(), agent.Request{
		Type:    requestType,
		Action:  action,
		Payload: payload,
	})
	if err != nil {
		// The manager's envelope carries recovery suggestions; send it with
		// the error's status code.
		status := http.StatusInternalServerError
		if e, ok := err.(*eduerrors.Error); ok {
			status = e.HTTPStatusCode()
		}
		h.writeJSON(w, status, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GenerateQuestions handles POST /api/v1/questions/generate. Generated
// questions are persisted before the response is written.
func (h *Handler) GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := h.manager.HandleRequest(r.Context(), agent.Request{
		Type:    "generate_questions",
		Action:  "generate_questions",
		Payload: payload,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if e, ok := err.(*eduerrors.Error); ok {
			status = e.HTTPStatusCode()
		}
		h.writeJSON(w, status, resp)
		return
	}

	questions := questionsFromResponse(resp)
	for i := range questions {
		if err := h.gateway.CreateQuestion(r.Context(), &questions[i]); err != nil {
			h.writeError(w, err)
			return
		}
	}
	resp["persisted"] = len(questions)
	h.writeJSON(w, http.StatusCreated, resp)
}

// questionsFromResponse pulls the generated questions out of an agent
// response. The manager returns the agent's map verbatim, so the slice is
// still concretely typed.
func questionsFromResponse(resp map[string]any) []types.Question {
	switch v := resp["questions"].(type) {
	case []types.Question:
		return v
	case []any:
		// Round-trip through JSON for responses that crossed an encode
		// boundary.
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var out []types.Question
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

// AdjustDifficulty handles POST /api/v1/questions/difficulty.
func (h *Handler) AdjustDifficulty(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, "question_generation", "adjust_difficulty")
}

// GenerateDistractors handles POST /api/v1/questions/distractors.
func (h *Handler) GenerateDistractors(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, "question_generation", "generate_distractors")
}

// BatchGenerateQuestions handles POST /api/v1/questions/batch.
func (h *Handler) BatchGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, "question_generation", "batch_generate_questions")
}

// GetQuestion handles GET /api/v1/questions/{id}.
func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	question, err := h.gateway.GetQuestion(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, question)
}

// reviewQuestionRequest marks a generated question as teacher-reviewed.
type reviewQuestionRequest struct {
	Reviewed bool   `json:"reviewed"`
	Notes    string `json:"notes,omitempty"`
}

// ReviewQuestion handles POST /api/v1/questions/{id}/review.
func (h *Handler) ReviewQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req reviewQuestionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.gateway.UpdateQuestionReview(r.Context(), id, req.Reviewed, req.Notes); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"question_id": id, "reviewed": req.Reviewed})
}

// ListQuestionsForKnowledgePoint handles GET /api/v1/knowledge/{id}/questions.
func (h *Handler) ListQuestionsForKnowledgePoint(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	questions, err := h.gateway.ListQuestionsForKnowledgePoint(r.Context(), id, 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"knowledge_point_id": id, "questions": questions})
}
