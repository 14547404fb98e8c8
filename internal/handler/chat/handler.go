package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/IvaTomevska/loob-beta/internal/model/chat"
	chatService "github.com/IvaTomevska/loob-beta/internal/service/chat"
	"github.com/IvaTomevska/loob-beta/internal/service/pipeline"
	"github.com/IvaTomevska/loob-beta/internal/service/retrieval"
	"github.com/IvaTomevska/loob-beta/pkg/utils"
)

// Pipeline 执行一轮对话并把片段流式写入 sink
type Pipeline interface {
	Handle(ctx context.Context, req chat.ChatRequest, sink func(fragment string) error) error
}

// Transcripts 列出会话已保存的消息
type Transcripts interface {
	Transcript(ctx context.Context, sessionID string) ([]chat.Turn, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	pipeline    Pipeline
	transcripts Transcripts
	logger      *zap.Logger
}

// New 创建聊天处理器
func New(p Pipeline, transcripts Transcripts, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		pipeline:    p,
		transcripts: transcripts,
		logger:      logger.Named("chat"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/sessions/{sessionID}/turns", h.handleTranscript)
}

// handleChat 以分块纯文本流式返回补全结果，
// 只有在第一个片段写出之前发生的错误才会返回给调用方
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	started := false
	sink := func(fragment string) error {
		if !started {
			utils.SetupTextStreamHeaders(w)
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(fragment)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := h.pipeline.Handle(r.Context(), req, sink)
	switch {
	case err == nil:
		if !started {
			utils.SetupTextStreamHeaders(w)
			w.WriteHeader(http.StatusOK)
		}
	case started:
		h.logger.Warn("chat stream interrupted", zap.String("session_id", req.SessionID), zap.Error(err))
	default:
		status := statusFor(err)
		h.logger.Error("chat request failed",
			zap.String("session_id", req.SessionID),
			zap.Int("status", status),
			zap.Error(err),
		)
		utils.RespondError(w, status, err.Error())
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrEmptyConversation),
		errors.Is(err, pipeline.ErrInvalidRole),
		errors.Is(err, chatService.ErrSessionRequired),
		errors.Is(err, retrieval.ErrInvalidMetric):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrRetrievalUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleTranscript 返回会话中已保存的消息
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionID is required")
		return
	}

	turns, err := h.transcripts.Transcript(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load transcript", zap.String("session_id", sessionID), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if turns == nil {
		turns = []chat.Turn{}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"turns":     turns,
	})
}
