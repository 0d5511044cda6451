package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/im-zhong/eduagent/internal/metrics"
	eduerrors "github.com/im-zhong/eduagent/pkg/errors"
	"github.com/im-zhong/eduagent/pkg/types"
	"github.com/im-zhong/eduagent/rag"
	"github.com/im-zhong/eduagent/vectorstore"
)

// uploadTextbookRequest carries textbook metadata plus pre-segmented
// sections. Document parsing happens client-side; the API receives text.
type uploadTextbookRequest struct {
	Title      string            `json:"title"`
	Author     string            `json:"author,omitempty"`
	Publisher  string            `json:"publisher,omitempty"`
	Subject    types.SubjectArea `json:"subject"`
	GradeLevel string            `json:"grade_level,omitempty"`
	Sections   []rag.Section     `json:"sections"`
}

// UploadTextbook handles POST /api/v1/textbooks. It stores the textbook,
// runs knowledge extraction over the sections, persists the result as a
// unit, and mirrors the knowledge points into the vector store when an
// embedder is configured.
func (h *Handler) UploadTextbook(w http.ResponseWriter, r *http.Request) {
	var req uploadTextbookRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Title == "" {
		h.writeError(w, eduerrors.NewInvalidRequestError("api", "title is required"))
		return
	}
	if len(req.Sections) == 0 {
		h.writeError(w, eduerrors.NewInvalidRequestError("api", "sections are required"))
		return
	}
	if req.Subject == "" {
		req.Subject = types.SubjectGeneral
	}

	textbook := &types.Textbook{
		ID:               uuid.New(),
		Title:            req.Title,
		Author:           req.Author,
		Publisher:        req.Publisher,
		Subject:          req.Subject,
		GradeLevel:       req.GradeLevel,
		FileType:         "sections",
		ExtractionStatus: types.ExtractionPending,
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.gateway.CreateTextbook(r.Context(), textbook); err != nil {
		h.writeError(w, err)
		return
	}

	summary, err := h.runExtraction(r.Context(), textbook, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"textbook":   textbook,
		"extraction": summary,
	})
}

// runExtraction drives the full pipeline for one textbook: extraction,
// transactional persistence, vector indexing, and status transitions.
func (h *Handler) runExtraction(ctx context.Context, textbook *types.Textbook, req uploadTextbookRequest) (map[string]any, error) {
	if err := h.gateway.UpdateTextbookStatus(ctx, textbook.ID, types.ExtractionProcessing, nil); err != nil {
		return nil, err
	}
	textbook.ExtractionStatus = types.ExtractionProcessing

	points, targets, mistakes, err := h.extract(ctx, textbook, req)
	if err != nil {
		_ = h.gateway.UpdateTextbookStatus(ctx, textbook.ID, types.ExtractionFailed, map[string]any{
			"error": err.Error(),
		})
		textbook.ExtractionStatus = types.ExtractionFailed
		metrics.RecordExtraction(h.extraction.Name(), "error", 0)
		h.logger.Error("extraction failed", "textbook_id", textbook.ID, "strategy", h.extraction.Name(), "error", err)
		return nil, err
	}

	if err := h.gateway.SaveExtractionResult(ctx, points, targets, mistakes); err != nil {
		_ = h.gateway.UpdateTextbookStatus(ctx, textbook.ID, types.ExtractionFailed, map[string]any{
			"error": err.Error(),
		})
		textbook.ExtractionStatus = types.ExtractionFailed
		return nil, err
	}

	metrics.RecordExtraction(h.extraction.Name(), "success", len(points))
	indexed := h.indexKnowledgePoints(ctx, points)

	summary := map[string]any{
		"strategy":         h.extraction.Name(),
		"knowledge_points": len(points),
		"ability_targets":  len(targets),
		"common_mistakes":  len(mistakes),
		"indexed":          indexed,
	}
	if err := h.gateway.UpdateTextbookStatus(ctx, textbook.ID, types.ExtractionCompleted, summary); err != nil {
		return nil, err
	}
	textbook.ExtractionStatus = types.ExtractionCompleted
	h.logger.Info("extraction completed", "textbook_id", textbook.ID,
		"strategy", h.extraction.Name(), "knowledge_points", len(points))
	return summary, nil
}

func (h *Handler) extract(ctx context.Context, textbook *types.Textbook, req uploadTextbookRequest) ([]types.KnowledgePoint, []types.AbilityTarget, []types.CommonMistake, error) {
	points, err := h.extraction.ExtractKnowledgePoints(ctx, req.Sections, textbook.ID)
	if err != nil {
		return nil, nil, nil, err
	}

	ec := rag.ExtractionContext{
		TextbookID: textbook.ID,
		Subject:    textbook.Subject,
		GradeLevel: textbook.GradeLevel,
	}
	var targets []types.AbilityTarget
	var mistakes []types.CommonMistake
	for _, kp := range points {
		kpTargets, err := h.extraction.ExtractAbilityTargets(ctx, kp, ec)
		if err != nil {
			return nil, nil, nil, err
		}
		targets = append(targets, kpTargets...)

		kpMistakes, err := h.extraction.ExtractCommonMistakes(ctx, kp, ec)
		if err != nil {
			return nil, nil, nil, err
		}
		mistakes = append(mistakes, kpMistakes...)
	}
	return points, targets, mistakes, nil
}

// indexKnowledgePoints mirrors knowledge points into the vector store.
// Indexing is best-effort: a failure degrades semantic retrieval but does
// not fail the upload.
func (h *Handler) indexKnowledgePoints(ctx context.Context, points []types.KnowledgePoint) int {
	if h.embedder == nil || h.vectors == nil || len(points) == 0 {
		return 0
	}

	texts := make([]string, len(points))
	for i, kp := range points {
		texts[i] = kp.Name + "\n" + kp.Description
	}
	vectors, err := h.embedder.Embed(ctx, texts)
	if err != nil || len(vectors) != len(points) {
		h.logger.Warn("knowledge point embedding failed, skipping index", "error", err)
		return 0
	}

	docs := make([]vectorstore.Document, len(points))
	for i, kp := range points {
		docs[i] = vectorstore.Document{
			ID:        kp.ID.String(),
			Content:   texts[i],
			Embedding: vectors[i],
			Metadata: map[string]any{
				rag.MetaKnowledgePointID: kp.ID.String(),
				rag.MetaTextbookID:       kp.TextbookID.String(),
				rag.MetaSubject:          string(kp.Subject),
				rag.MetaChapter:          kp.Chapter,
				"name":                   kp.Name,
				"importance_score":       kp.ImportanceScore,
			},
		}
	}
	stored, err := h.vectors.AddDocuments(ctx, docs)
	if err != nil {
		h.logger.Warn("vector indexing incomplete", "stored", len(stored), "error", err)
	}
	return len(stored)
}
