package errors

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ProblemDetails implements RFC 7807 problem responses.
type ProblemDetails struct {
	Type     string             `json:"type"`
	Title    string             `json:"title"`
	Status   int                `json:"status"`
	Detail   string             `json:"detail,omitempty"`
	Instance string             `json:"instance,omitempty"`
	TraceID  string             `json:"trace_id,omitempty"`
	Errors   []*ValidationError `json:"errors,omitempty"`
}

func (p *ProblemDetails) Error() string { return p.Title + ": " + p.Detail }

func newProblem(problemType, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:     "https://taskpredict.dev/problems/" + problemType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// Handler converts core errors into RFC 7807 responses. When development is
// true the detail of internal failures carries the real cause; in production
// it is replaced by a generic message.
type Handler struct {
	development bool
}

// NewHandler creates an error handler for the given environment.
func NewHandler(development bool) *Handler {
	return &Handler{development: development}
}

// Respond writes an RFC 7807 response for err on c.
func (h *Handler) Respond(c *gin.Context, err error) {
	instance := c.Request.URL.Path
	problem := h.toProblem(err, instance)
	if traceID := c.GetString("request_id"); traceID != "" {
		problem.TraceID = traceID
	}
	c.Header("Content-Type", "application/problem+json")
	c.JSON(problem.Status, problem)
}

func (h *Handler) toProblem(err error, instance string) *ProblemDetails {
	var ve *ValidationError
	if errors.As(err, &ve) {
		p := newProblem("validation", "Request validation failed", http.StatusBadRequest, ve.Message, instance)
		p.Errors = []*ValidationError{ve}
		return p
	}

	var te *TrainingError
	if errors.As(err, &te) {
		detail := "model training failed"
		if h.development {
			detail = te.Error()
		}
		return newProblem("training-failed", "Training failed", http.StatusInternalServerError, detail, instance)
	}

	switch {
	case errors.Is(err, ErrModelNotLoaded):
		return newProblem("model-not-loaded", "Model not loaded", http.StatusServiceUnavailable, err.Error(), instance)
	case errors.Is(err, ErrInvalidModelType), errors.Is(err, ErrUnsupportedFamily):
		return newProblem("invalid-model-type", "Invalid model type", http.StatusBadRequest, err.Error(), instance)
	case errors.Is(err, ErrDependencyUnavailable), errors.Is(err, ErrAttributionUnavailable):
		return newProblem("capability-unavailable", "Capability unavailable", http.StatusNotImplemented, err.Error(), instance)
	case errors.Is(err, ErrNotCalibrated):
		return newProblem("not-calibrated", "Predictor not calibrated", http.StatusConflict, err.Error(), instance)
	case errors.Is(err, ErrTrainingInProgress):
		return newProblem("training-in-progress", "Training in progress", http.StatusConflict, err.Error(), instance)
	}

	detail := "internal server error"
	if h.development {
		detail = err.Error()
	}
	return newProblem("internal", "Internal server error", http.StatusInternalServerError, detail, instance)
}
