package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"codesync/internal/exec"
	"codesync/internal/middleware"
	"codesync/internal/models"
	"codesync/internal/repositories"
	"codesync/internal/room_management"
	"codesync/internal/session"
	"codesync/internal/utils"
)

const (
	defaultQuestionLimit = 20
	maxQuestionLimit     = 100
	readyTimeout         = 2 * time.Second
)

// QuestionCatalog is the read side of the question bank.
type QuestionCatalog interface {
	List(ctx context.Context, f models.QuestionFilter) ([]models.Question, int64, error)
	GetByID(ctx context.Context, id string) (*models.Question, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	rooms    *room_management.RoomManager
	catalog  QuestionCatalog
	gateway  *exec.Gateway
	recorder room_management.Recorder
	hub      *session.Hub
	registry *session.Registry
	store    Pinger
	logger   *zap.Logger

	allowedOrigins []string
}

type Options struct {
	Rooms    *room_management.RoomManager
	Catalog  QuestionCatalog
	Gateway  *exec.Gateway
	Recorder room_management.Recorder
	Hub      *session.Hub
	Registry *session.Registry
	Store    Pinger
	Logger   *zap.Logger

	// websocket origins; empty allows all
	AllowedOrigins []string
}

func NewHandlers(o Options) *Handlers {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		rooms:    o.Rooms,
		catalog:  o.Catalog,
		gateway:  o.Gateway,
		recorder: o.Recorder,
		hub:      o.Hub,
		registry: o.Registry,
		store:    o.Store,
		logger:   logger,

		allowedOrigins: o.AllowedOrigins,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// Readyz reports 503 while the membership store is unreachable.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		utils.Error(w, http.StatusServiceUnavailable, models.ErrCodeInternal, "store unavailable")
		return
	}
	_, _ = w.Write([]byte("ready"))
}

/*** Rooms ***/

func (h *Handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	id, err := h.rooms.CreateRoom(r.Context())
	if err != nil {
		h.logger.Error("failed to create room", zap.Error(err))
		utils.Error(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to create room")
		return
	}
	utils.JSON(w, http.StatusCreated, models.RoomCreatedResponse{RoomID: id})
}

func (h *Handlers) ValidateRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	exists, err := h.rooms.RoomExists(r.Context(), roomID)
	if err != nil {
		h.logger.Error("failed to validate room", zap.String("roomId", roomID), zap.Error(err))
		utils.Error(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to validate room")
		return
	}
	utils.JSON(w, http.StatusOK, models.RoomExistsResponse{Exists: exists})
}

func (h *Handlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.rooms.ListRooms(r.Context())
	if err != nil {
		h.logger.Error("failed to list rooms", zap.Error(err))
		utils.Error(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to list rooms")
		return
	}
	utils.JSON(w, http.StatusOK, models.RoomsResponse{Rooms: rooms})
}

/*** Questions ***/

func (h *Handlers) ListQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.QuestionFilter{
		Difficulty: strings.TrimSpace(q.Get("difficulty")),
		Tag:        strings.TrimSpace(q.Get("tag")),
		Search:     strings.TrimSpace(q.Get("search")),
		Limit:      parseClamped(q.Get("limit"), defaultQuestionLimit, 0, maxQuestionLimit),
		Offset:     parseClamped(q.Get("offset"), 0, 0, -1),
	}

	items, total, err := h.catalog.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list questions", zap.Error(err))
		utils.Error(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to fetch questions")
		return
	}
	if items == nil {
		items = []models.Question{}
	}
	utils.JSON(w, http.StatusOK, models.QuestionsResponse{Items: items, Total: total})
}

func (h *Handlers) GetQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	question, err := h.catalog.GetByID(r.Context(), id)
	if errors.Is(err, repositories.ErrQuestionNotFound) {
		utils.Error(w, http.StatusNotFound, models.ErrCodeNotFound, "")
		return
	}
	if err != nil {
		h.logger.Error("failed to fetch question", zap.String("questionId", id), zap.Error(err))
		utils.Error(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to fetch question")
		return
	}
	utils.JSON(w, http.StatusOK, question)
}

// parseClamped parses raw as an integer and clamps it to [lo, hi]. Missing,
// malformed or zero values fall back to def. A negative hi means no upper bound.
func parseClamped(raw string, def, lo, hi int64) int64 {
	v := def
	if raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n != 0 {
			v = n
		}
	}
	if v < lo {
		v = lo
	}
	if hi >= 0 && v > hi {
		v = hi
	}
	return v
}

/*** Execution ***/

// Execute runs code synchronously. The body has already been decoded and
// validated by middleware.ValidateRequest.
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.ExecuteRequest](r)

	rec := &models.ExecutionRecord{
		Source:   models.ExecutionSourceAPI,
		Language: req.Language,
		Code:     req.Code,
		Input:    req.Input,
		Provider: h.gateway.ProviderName(),
	}

	res, err := h.gateway.Execute(r.Context(), exec.Request{Language: req.Language, Code: req.Code, Input: req.Input})
	if err != nil {
		code := exec.ErrorCode(err)
		body := models.ErrorResponse{Code: code, Message: err.Error()}
		var perr *exec.ProviderError
		if errors.As(err, &perr) {
			body.Message = perr.Message
			body.Detail = perr.Detail
		}
		if code != models.ErrCodeInvalidLanguage && code != models.ErrCodeInvalidCode && code != models.ErrCodeCodeTooLarge {
			rec.ErrorCode = code
			h.record(r.Context(), rec)
		}
		utils.JSON(w, statusForCode(code), body)
		return
	}

	rec.Stdout, rec.Stderr, rec.TimeMs = res.Stdout, res.Stderr, res.TimeMs
	rec.MemoryKb, rec.Status = res.MemoryKb, res.Status
	h.record(r.Context(), rec)

	utils.JSON(w, http.StatusOK, models.ExecuteResponse{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		TimeMs:   res.TimeMs,
		Status:   res.Status,
		MemoryKb: res.MemoryKb,
	})
}

func (h *Handlers) record(ctx context.Context, rec *models.ExecutionRecord) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.Record(ctx, rec); err != nil {
		h.logger.Error("failed to record execution", zap.Error(err))
	}
}

func statusForCode(code string) int {
	switch code {
	case models.ErrCodeInvalidLanguage, models.ErrCodeInvalidCode, models.ErrCodeInvalidJSON:
		return http.StatusBadRequest
	case models.ErrCodeCodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case models.ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case models.ErrCodeProviderError:
		return http.StatusBadGateway
	case models.ErrCodeProviderNotConfigured:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
