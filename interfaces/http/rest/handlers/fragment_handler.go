package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"mindloom-backend/application/commands"
	"mindloom-backend/application/commands/bus"
	commands_handlers "mindloom-backend/application/commands/handlers"
	"mindloom-backend/application/queries"
	querybus "mindloom-backend/application/queries/bus"
	"mindloom-backend/pkg/auth"
	"mindloom-backend/pkg/common"
	pkgerrors "mindloom-backend/pkg/errors"
	"mindloom-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxCaptureBodyBytes bounds the capture payload; the largest legitimate
// capture is the text limit plus metadata
const maxCaptureBodyBytes = 128 * 1024

// FragmentHandler handles fragment-related HTTP requests
type FragmentHandler struct {
	capture    *commands.CaptureFragmentHandler
	bulkDelete *commands_handlers.BulkDeleteFragmentsHandler
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewFragmentHandler creates a new fragment handler
func NewFragmentHandler(
	capture *commands.CaptureFragmentHandler,
	bulkDelete *commands_handlers.BulkDeleteFragmentsHandler,
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *FragmentHandler {
	return &FragmentHandler{
		capture:    capture,
		bulkDelete: bulkDelete,
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		logger:     logger,
	}
}

// CaptureFragmentRequest represents the request body for capturing a fragment
type CaptureFragmentRequest struct {
	PageURL string `json:"page_url" validate:"required,max=2048"`
	Title   string `json:"title,omitempty" validate:"max=512"`
	Summary string `json:"summary,omitempty" validate:"max=4096"`
	Text    string `json:"text" validate:"required,max=50000"`
}

// CaptureFragmentResponse represents the response for capturing a fragment
type CaptureFragmentResponse struct {
	ID        string `json:"id"`
	PageKey   string `json:"page_key"`
	CreatedAt string `json:"created_at"`
}

// BulkDeleteRequest represents the request body for a bulk delete
type BulkDeleteRequest struct {
	FragmentIDs []string `json:"fragment_ids" validate:"required,min=1,max=100"`
}

// CaptureFragment handles POST /fragments
func (h *FragmentHandler) CaptureFragment(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, common.StandardErrorCodes.Unauthorized, "Unauthorized")
		return
	}

	var req CaptureFragmentRequest
	if err := common.ParseJSONBody(r, &req, maxCaptureBodyBytes); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	fragment, err := h.capture.Handle(r.Context(), commands.CaptureFragmentCommand{
		UserID:  user.UserID,
		PageURL: req.PageURL,
		Title:   req.Title,
		Summary: req.Summary,
		Text:    req.Text,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, CaptureFragmentResponse{
		ID:        fragment.ID().String(),
		PageKey:   fragment.PageKey().String(),
		CreatedAt: fragment.CreatedAt().Format(time.RFC3339),
	})
}

// ListFragments handles GET /fragments?url=...
func (h *FragmentHandler) ListFragments(w http.ResponseWriter, r *http.Request) {
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

	window := common.ExtractListWindow(r)
	result, err := h.queryBus.Ask(r.Context(), queries.ListFragmentsQuery{
		UserID:  user.UserID,
		PageURL: pageURL,
		Limit:   window.Limit,
		Offset:  window.Offset,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// DeleteFragment handles DELETE /fragments/{fragmentID}
func (h *FragmentHandler) DeleteFragment(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, common.StandardErrorCodes.Unauthorized, "Unauthorized")
		return
	}

	fragmentID := chi.URLParam(r, "fragmentID")
	if fragmentID == "" {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "Missing fragment ID")
		return
	}

	err = h.commandBus.Send(r.Context(), commands.DeleteFragmentCommand{
		UserID:     user.UserID,
		FragmentID: fragmentID,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BulkDeleteFragments handles POST /fragments/bulk-delete
func (h *FragmentHandler) BulkDeleteFragments(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, common.StandardErrorCodes.Unauthorized, "Unauthorized")
		return
	}

	var req BulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	result, err := h.bulkDelete.Handle(r.Context(), commands.BulkDeleteFragmentsCommand{
		UserID:      user.UserID,
		FragmentIDs: req.FragmentIDs,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}
