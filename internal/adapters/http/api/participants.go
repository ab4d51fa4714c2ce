package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/rivalry/internal/domain/model"
)

var validate = validator.New()

// ParticipantDependencies defines the interface for recording totals.
type ParticipantDependencies interface {
	Record(ctx context.Context, p model.Participant) (bool, error)
}

// ParticipantHandler handles participant writes.
type ParticipantHandler struct {
	deps ParticipantDependencies
}

// NewParticipantHandler creates a new participant handler.
func NewParticipantHandler(deps ParticipantDependencies) *ParticipantHandler {
	return &ParticipantHandler{deps: deps}
}

type recordResponse struct {
	Status  string `json:"status"`
	Changed bool   `json:"changed"`
}

// HandlePostParticipant handles POST /participants requests.
func (h *ParticipantHandler) HandlePostParticipant(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_participant"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validate.StructCtx(r.Context(), req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	changed, err := h.deps.Record(r.Context(), req.participant())
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Status: "recorded", Changed: changed})
}
