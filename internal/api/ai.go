package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/studydeck/internal/auth"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Generator is the completion backend used by the AI endpoints.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSONRaw(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error)
}

// AIRequest is the body of POST /api/ai.
type AIRequest struct {
	Prompt string `json:"prompt"`
}

// AIJSONRequest is the body of POST /api/ai/json.
type AIJSONRequest struct {
	System string `json:"system"`
	Prompt string `json:"prompt"`
}

// AIResponse wraps a completion result.
type AIResponse struct {
	Data any `json:"data"`
}

// AIHandler serves the AI endpoints.
type AIHandler struct {
	gen         Generator
	limiter     *RateLimiter
	logger      *slog.Logger
	maxBodySize int64
}

// NewAIHandler returns a handler backed by gen. limiter may be nil.
func NewAIHandler(gen Generator, limiter *RateLimiter, logger *slog.Logger) *AIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AIHandler{
		gen:         gen,
		limiter:     limiter,
		logger:      logger,
		maxBodySize: defaultMaxRequestBodySize,
	}
}

// RegisterRoutes mounts the AI endpoints on r.
func (h *AIHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/ai", h.Generate)
	r.Post("/api/ai/json", h.GenerateJSON)
}

// Generate handles POST /api/ai.
func (h *AIHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	var req AIRequest
	if err := decodeBody(w, r, h.maxBodySize, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		Error(w, http.StatusBadRequest, "prompt is required")
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	h.logger.Info("AI request", "request_id", reqID, "user_id", userID(r), "prompt_length", len(req.Prompt))

	text, err := h.gen.Generate(r.Context(), req.Prompt)
	if err != nil {
		h.logger.Error("AI generation failed", "request_id", reqID, "error", err)
		Error(w, http.StatusBadGateway, "failed to generate response")
		return
	}
	JSON(w, http.StatusOK, AIResponse{Data: text})
}

// GenerateJSON handles POST /api/ai/json.
func (h *AIHandler) GenerateJSON(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	var req AIJSONRequest
	if err := decodeBody(w, r, h.maxBodySize, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		Error(w, http.StatusBadRequest, "prompt is required")
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	h.logger.Info("AI JSON request", "request_id", reqID, "user_id", userID(r), "prompt_length", len(req.Prompt))

	raw, err := h.gen.GenerateJSONRaw(r.Context(), req.System, req.Prompt)
	if err != nil {
		h.logger.Error("AI generation failed", "request_id", reqID, "error", err)
		Error(w, http.StatusBadGateway, "failed to generate response")
		return
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		h.logger.Error("AI returned invalid JSON", "request_id", reqID, "error", err)
		Error(w, http.StatusBadGateway, "failed to generate response")
		return
	}
	JSON(w, http.StatusOK, AIResponse{Data: data})
}

// allow rate-limits by user id when signed in, else by client IP.
func (h *AIHandler) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	key := userID(r)
	if key == "" {
		key = "ip:" + auth.IPFromRequest(r)
	}
	if !h.limiter.Allow(key) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func userID(r *http.Request) string {
	if u := auth.UserFromContext(r.Context()); u != nil {
		return u.ID
	}
	return ""
}
