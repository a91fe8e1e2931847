package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/postline/postline-backend/internal/config"
	"github.com/postline/postline-backend/internal/engine"
	"github.com/postline/postline-backend/internal/store"
	"github.com/postline/postline-backend/internal/timeline"
	"github.com/postline/postline-backend/internal/ws"
)

type Handler struct {
	engine     *engine.Engine
	wsHub      *ws.Hub
	sseHandler *ws.SSEHandler
	cache      *store.Cache
	config     *config.Config
	logger     *zap.SugaredLogger
}

func NewHandler(
	eng *engine.Engine,
	wsHub *ws.Hub,
	sseHandler *ws.SSEHandler,
	cache *store.Cache,
	cfg *config.Config,
	logger *zap.SugaredLogger,
) *Handler {
	return &Handler{
		engine:     eng,
		wsHub:      wsHub,
		sseHandler: sseHandler,
		cache:      cache,
		config:     cfg,
		logger:     logger,
	}
}

// Timeline endpoints

// GetTimeline runs the smart refresh for the project and returns the merged
// timeline for the requested window, ghosts included.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	window, err := parseWindow(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_WINDOW", err.Error())
		return
	}

	if err := h.engine.ActivateView(r.Context(), projectID); err != nil {
		h.logger.Warnw("View activation failed", "project", projectID, "error", err)
	}

	posts := h.engine.Timeline(r.Context(), projectID, window)
	if posts == nil {
		posts = []timeline.Post{}
	}

	h.writeJSON(w, http.StatusOK, TimelineResponse{
		Posts: posts,
		Flags: h.engine.Flags(projectID),
	})
}

func (h *Handler) GetNotes(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	notes := h.engine.Notes(projectID)
	if notes == nil {
		notes = []timeline.Note{}
	}
	h.writeJSON(w, http.StatusOK, NotesResponse{Notes: notes})
}

// Refresh endpoints

func (h *Handler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	err := h.engine.RefreshAll(r.Context(), projectID)
	switch {
	case errors.Is(err, engine.ErrRefreshInFlight):
		h.writeError(w, http.StatusConflict, "REFRESH_IN_FLIGHT", "a refresh for this project is already running")
	case err != nil:
		h.writeError(w, http.StatusBadGateway, "REFRESH_FAILED", err.Error())
	default:
		h.writeJSON(w, http.StatusOK, h.engine.Flags(projectID))
	}
}

func (h *Handler) RefreshCategory(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	category := engine.Category(chi.URLParam(r, "category"))

	if !validCategory(category) {
		h.writeError(w, http.StatusBadRequest, "INVALID_CATEGORY", "unknown refresh category")
		return
	}

	if err := h.engine.RefreshCategory(r.Context(), projectID, category); err != nil {
		h.writeError(w, http.StatusBadGateway, "REFRESH_FAILED", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.engine.Flags(projectID))
}

// Post endpoints

func (h *Handler) SavePost(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req SavePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	saved, err := h.engine.SavePost(r.Context(), projectID, req.Post, req.ScheduleExternally)
	if err != nil {
		if errors.Is(err, timeline.ErrEmptyContent) {
			h.writeError(w, http.StatusUnprocessableEntity, "EMPTY_CONTENT", err.Error())
			return
		}
		h.writeError(w, http.StatusBadGateway, "SAVE_FAILED", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	postID := chi.URLParam(r, "postID")

	if err := h.engine.DeletePost(r.Context(), projectID, postID); err != nil {
		h.writeError(w, http.StatusBadGateway, "DELETE_FAILED", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PublishPostNow(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	postID := chi.URLParam(r, "postID")

	err := h.engine.PublishNow(r.Context(), projectID, postID)
	switch {
	case errors.Is(err, engine.ErrUnknownItem):
		h.writeError(w, http.StatusNotFound, "UNKNOWN_POST", "post not present in the live dataset")
	case err != nil:
		h.writeError(w, http.StatusBadGateway, "PUBLISH_FAILED", err.Error())
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

// Note endpoints

func (h *Handler) SaveNote(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req SaveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	saved, err := h.engine.SaveNote(r.Context(), projectID, req.Note)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "SAVE_FAILED", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	noteID := chi.URLParam(r, "noteID")

	if err := h.engine.DeleteNote(r.Context(), projectID, noteID); err != nil {
		h.writeError(w, http.StatusBadGateway, "DELETE_FAILED", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Selection endpoints

func (h *Handler) ToggleSelectionMode(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	mode := h.engine.ToggleSelectionMode(projectID)
	h.writeJSON(w, http.StatusOK, SelectionModeResponse{Mode: mode})
}

func (h *Handler) ToggleItemSelected(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req ToggleItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	selected := h.engine.ToggleItemSelected(projectID, req.Kind, req.ID)
	posts, notes := h.engine.SelectedCounts(projectID)
	h.writeJSON(w, http.StatusOK, ToggleItemResponse{
		Selected:      selected,
		SelectedPosts: posts,
		SelectedNotes: notes,
	})
}

func (h *Handler) BulkDeleteSelected(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	result := h.engine.BulkDeleteSelected(r.Context(), projectID)
	h.writeJSON(w, http.StatusOK, BulkDeleteResponse{
		BulkDeleteResult: result,
		Summary:          result.String(),
	})
}

// Drag endpoints

func (h *Handler) BeginDrag(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req BeginDragRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	err := h.engine.BeginDrag(projectID, req.Kind, req.ID)
	switch {
	case errors.Is(err, engine.ErrAlreadyDragging):
		h.writeError(w, http.StatusConflict, "DRAG_IN_PROGRESS", "another drag is in progress")
	case errors.Is(err, engine.ErrUnknownItem):
		h.writeError(w, http.StatusNotFound, "UNKNOWN_ITEM", "item not present in the live dataset")
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, "DRAG_FAILED", err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) DropOnDate(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req DropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	prompt, err := h.engine.DropOnDate(projectID, req.TargetDate)
	if err != nil {
		if errors.Is(err, engine.ErrNotDragging) {
			h.writeError(w, http.StatusConflict, "NOT_DRAGGING", "no drag in progress")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "DROP_FAILED", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, DropResponse{Prompt: prompt})
}

func (h *Handler) EndDrag(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	h.engine.DragEnd(projectID)
	w.WriteHeader(http.StatusNoContent)
}

// Move/copy confirmation endpoints

func (h *Handler) GetPendingMove(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	prompt := h.engine.PendingMove(projectID)
	if prompt == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, prompt)
}

func (h *Handler) ConfirmMove(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req ConfirmMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Destination == "" {
		req.Destination = engine.DestinationInternal
	}

	err := h.engine.ConfirmMoveOrCopy(r.Context(), projectID, req.IsCopy, req.Destination)
	switch {
	case errors.Is(err, engine.ErrNoPendingMove):
		h.writeError(w, http.StatusConflict, "NO_PENDING_MOVE", "no move/copy awaiting confirmation")
	case errors.Is(err, engine.ErrUnknownItem):
		h.writeError(w, http.StatusNotFound, "UNKNOWN_ITEM", "item no longer present in the live dataset")
	case err != nil:
		h.writeError(w, http.StatusBadGateway, "RESOLUTION_FAILED", err.Error())
	default:
		h.writeJSON(w, http.StatusOK, h.engine.Flags(projectID))
	}
}

func (h *Handler) CancelMove(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	h.engine.CancelMoveOrCopy(projectID)
	w.WriteHeader(http.StatusNoContent)
}

// Health endpoints

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// Live updates

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHub.HandleWebSocket(w, r)
}

func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseHandler.HandleSSE(w, r)
}

// Utility methods

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := ErrorResponse{
		Code:    code,
		Message: message,
	}
	json.NewEncoder(w).Encode(err)
}

func parseWindow(r *http.Request) (timeline.Window, error) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		return timeline.Window{}, errors.New("from must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		return timeline.Window{}, errors.New("to must be RFC3339")
	}
	if to.Before(from) {
		return timeline.Window{}, errors.New("to precedes from")
	}
	return timeline.Window{From: from, To: to}, nil
}

func validCategory(c engine.Category) bool {
	for _, known := range engine.Categories {
		if c == known {
			return true
		}
	}
	return false
}
