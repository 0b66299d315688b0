package handlers

import (
	"net/http"

	"mindloom-backend/application/queries"
	querybus "mindloom-backend/application/queries/bus"
	"mindloom-backend/pkg/auth"
	"mindloom-backend/pkg/common"
	pkgerrors "mindloom-backend/pkg/errors"

	"go.uber.org/zap"
)

// GroupHandler handles keyword group HTTP requests
type GroupHandler struct {
	queryBus *querybus.QueryBus
	errors   *pkgerrors.ErrorHandler
	logger   *zap.Logger
}

// NewGroupHandler creates a new group handler
func NewGroupHandler(queryBus *querybus.QueryBus, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{
		queryBus: queryBus,
		errors:   errorHandler,
		logger:   logger,
	}
}

// GetGroups handles GET /groups?url=...
func (h *GroupHandler) GetGroups(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.queryBus.Ask(r.Context(), queries.GetGroupsQuery{
		UserID:  user.UserID,
		PageURL: pageURL,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}
