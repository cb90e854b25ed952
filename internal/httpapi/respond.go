package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"restaurantDelivery/internal/dispatch"
	"restaurantDelivery/internal/lifecycle"
	"restaurantDelivery/internal/simulator"
	"restaurantDelivery/models"
	"restaurantDelivery/repository"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain and persistence errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, models.ErrInvalidOrder),
		errors.Is(err, dispatch.ErrInvalidProof),
		errors.Is(err, repository.ErrBadCursor):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, repository.ErrRevisionConflict),
		errors.Is(err, repository.ErrOrderClosed):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrOrderNotFound),
		errors.Is(err, simulator.ErrOrderNotFound),
		errors.Is(err, dispatch.ErrAgentNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrOrderNotEligible),
		errors.Is(err, dispatch.ErrAgentBusy),
		errors.Is(err, repository.ErrAgentTaken),
		errors.Is(err, dispatch.ErrAgentUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dispatch.ErrProofMismatch):
		return http.StatusForbidden
	case errors.Is(err, dispatch.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, repository.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= 500 {
		s.log(r).Error("request failed", zap.Error(err))
		if code == http.StatusInternalServerError {
			msg = "internal error"
		}
	} else {
		s.log(r).Debug("request rejected", zap.Int("status", code), zap.Error(err))
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

// decode reads a JSON body into dst and validates its struct tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return badRequest("%s", strings.Join(fields, "; "))
		}
		return badRequest("%v", err)
	}
	return nil
}
