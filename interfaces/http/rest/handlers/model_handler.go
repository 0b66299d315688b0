package handlers

import (
	"net/http"

	"mindloom-backend/application/queries"
	querybus "mindloom-backend/application/queries/bus"
	"mindloom-backend/pkg/common"
	pkgerrors "mindloom-backend/pkg/errors"

	"go.uber.org/zap"
)

// ModelHandler handles generation model catalog HTTP requests
type ModelHandler struct {
	queryBus *querybus.QueryBus
	errors   *pkgerrors.ErrorHandler
	logger   *zap.Logger
}

// NewModelHandler creates a new model handler
func NewModelHandler(queryBus *querybus.QueryBus, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *ModelHandler {
	return &ModelHandler{
		queryBus: queryBus,
		errors:   errorHandler,
		logger:   logger,
	}
}

// ListModels handles GET /models
func (h *ModelHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), queries.ListModelsQuery{})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}
