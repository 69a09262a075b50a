package http

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/casebook/internal/models"
)

// Analyzer summarizes a prompt with a language model.
type Analyzer interface {
	Enabled() bool
	Summarize(ctx context.Context, prompt string) (string, error)
}

// AnalyzeHandler handles POST /api/analyze.
type AnalyzeHandler struct {
	Analyzer Analyzer
	Log      *zap.Logger
}

func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	if h.Analyzer == nil || !h.Analyzer.Enabled() {
		writeError(w, h.Log, models.ErrAnalysisDisabled)
		return
	}
	var req models.AnalyzeRequest
	if !decode(w, r, &req) {
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" || len(req.Prompt) > models.MaxPromptBytes {
		writeErrorCode(w, http.StatusBadRequest, "prompt must be between 1 and 65536 bytes", models.CodeInvalidInput)
		return
	}

	summary, err := h.Analyzer.Summarize(r.Context(), req.Prompt)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, models.AnalyzeResponse{Summary: summary})
}
