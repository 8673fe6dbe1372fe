package httpx

import (
	"errors"
	"net/http"

	"github.com/lumenhq/lumen/internal/shared"
)

// RespondError maps billing domain errors to HTTP responses using RFC7807.
// Every typed outcome of the lifecycle engine is an expected client error;
// only unexpected failures fall through to a 500 with no detail leaked.
func RespondError(w http.ResponseWriter, err error) {
	var validationErr *shared.ValidationError
	var transitionErr *shared.InvalidTransitionError
	switch {
	case errors.As(err, &validationErr):
		Problem(w, http.StatusBadRequest, "Validation Failed", validationErr.Error())
	case errors.As(err, &transitionErr):
		Problem(w, http.StatusConflict, "Invalid Transition", transitionErr.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrAlreadyPaid):
		Problem(w, http.StatusConflict, "Already Paid", err.Error())
	case errors.Is(err, shared.ErrCanceledInvoice):
		Problem(w, http.StatusConflict, "Invoice Canceled", err.Error())
	case errors.Is(err, shared.ErrPlanPricingNotFound):
		Problem(w, http.StatusUnprocessableEntity, "Plan Pricing Not Found", err.Error())
	case errors.Is(err, shared.ErrConcurrentModification):
		Problem(w, http.StatusConflict, "Concurrent Modification", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
