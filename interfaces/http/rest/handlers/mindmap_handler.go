package handlers

import (
	"net/http"

	"mindloom-backend/application/commands"
	"mindloom-backend/application/commands/bus"
	"mindloom-backend/application/queries"
	querybus "mindloom-backend/application/queries/bus"
	"mindloom-backend/pkg/auth"
	"mindloom-backend/pkg/common"
	pkgerrors "mindloom-backend/pkg/errors"
	"mindloom-backend/pkg/utils"

	"go.uber.org/zap"
)

// MindMapHandler handles mind map HTTP requests
type MindMapHandler struct {
	commandBus  *bus.CommandBus
	queryBus    *querybus.QueryBus
	rateLimiter *auth.DistributedRateLimiter
	errors      *pkgerrors.ErrorHandler
	logger      *zap.Logger
}

// NewMindMapHandler creates a new mind map handler
func NewMindMapHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	rateLimiter *auth.DistributedRateLimiter,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *MindMapHandler {
	return &MindMapHandler{
		commandBus:  commandBus,
		queryBus:    queryBus,
		rateLimiter: rateLimiter,
		errors:      errorHandler,
		logger:      logger,
	}
}

// RegenerateMapRequest represents the request body for a manual regeneration
type RegenerateMapRequest struct {
	PageURL string `json:"page_url" validate:"required,max=2048"`
}

// GetMindMap handles GET /maps?url=...
func (h *MindMapHandler) GetMindMap(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, common.StandardErrorCodes.Unauthorized, "Unauthorized")
		return
	}

	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "Missing url query parameter")
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetMindMapQuery{
		UserID:  user.UserID,
		PageURL: pageURL,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// RegenerateMap handles POST /maps/regenerate. Regeneration is queued, not
// performed inline, so success is 202 and the finished map arrives over the
// WebSocket push or the next GET.
func (h *MindMapHandler) RegenerateMap(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, common.StandardErrorCodes.Unauthorized, "Unauthorized")
		return
	}

	// Manual regenerations spend generation-service quota, so they are
	// rate limited per user across all instances
	allowed, err := h.rateLimiter.Allow(r.Context(), user.UserID)
	if err != nil {
		h.logger.Warn("Rate limiter degraded", zap.Error(err))
	}
	if !allowed {
		headers := make(map[string]string)
		if err := h.rateLimiter.SetHeaders(r.Context(), user.UserID, headers); err == nil {
			for key, value := range headers {
				w.Header().Set(key, value)
			}
		}
		common.RespondError(w, http.StatusTooManyRequests, common.StandardErrorCodes.TooManyRequests, "Regeneration rate limit exceeded")
		return
	}

	var req RegenerateMapRequest
	if err := common.ParseJSONBody(r, &req, 8*1024); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	err = h.commandBus.Send(r.Context(), commands.RegenerateMapCommand{
		UserID:  user.UserID,
		PageURL: req.PageURL,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
	})
}

// GetRevisions handles GET /maps/revisions?url=...
func (h *MindMapHandler) GetRevisions(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, common.StandardErrorCodes.Unauthorized, "Unauthorized")
		return
	}

	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "Missing url query parameter")
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetRevisionsQuery{
		UserID:  user.UserID,
		PageURL: pageURL,
		Limit:   common.ExtractListWindow(r).Limit,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}
