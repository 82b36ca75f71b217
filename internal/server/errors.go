package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	aggregatedomain "github.com/smallbiznis/certify/internal/aggregate/domain"
	auditdomain "github.com/smallbiznis/certify/internal/audit/domain"
	customerdomain "github.com/smallbiznis/certify/internal/customer/domain"
	historydomain "github.com/smallbiznis/certify/internal/history/domain"
	lifecycledomain "github.com/smallbiznis/certify/internal/lifecycle/domain"
	"github.com/smallbiznis/certify/internal/reconcile"
	"github.com/smallbiznis/certify/internal/status"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type           string            `json:"type"`
	Message        string            `json:"message"`
	Errors         []ValidationError `json:"errors,omitempty"`
	AllowedTargets []status.Status   `json:"allowed_targets,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInternal = errors.New("internal_error")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErrs *ValidationErrors
	if errors.As(err, &vErrs) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErrs.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var ruleErr *lifecycledomain.RuleViolationError
	if errors.As(err, &ruleErr) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:           "rule_violation",
			Message:        ruleErr.Error(),
			AllowedTargets: ruleErr.Allowed,
		}
	}

	switch {
	case errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, lifecycledomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "resource not found",
		}
	case errors.Is(err, customerdomain.ErrEmailTaken):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "a customer with this email already exists",
		}
	case errors.Is(err, lifecycledomain.ErrConcurrentModification):
		return http.StatusConflict, errorPayload{
			Type:    "concurrent_modification",
			Message: "resource was modified concurrently, retry the request",
		}
	case errors.Is(err, reconcile.ErrAlreadyRunning):
		return http.StatusConflict, errorPayload{
			Type:    "already_running",
			Message: "a reconciliation run is already in progress",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// validationErrorCode flattens the per-feature invalid-input errors into one
// machine readable code.
func validationErrorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, status.ErrUnknownStatus):
		return "unknown_status", true
	case errors.Is(err, customerdomain.ErrInvalidName):
		return "invalid_name", true
	case errors.Is(err, customerdomain.ErrInvalidEmail):
		return "invalid_email", true
	case errors.Is(err, customerdomain.ErrInvalidID),
		errors.Is(err, lifecycledomain.ErrInvalidID):
		return "invalid_customer_id", true
	case errors.Is(err, customerdomain.ErrInvalidStatusFilter):
		return "invalid_status_filter", true
	case errors.Is(err, customerdomain.ErrInvalidCertificateType):
		return "invalid_certificate_type", true
	case errors.Is(err, customerdomain.ErrInvalidPageToken),
		errors.Is(err, historydomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidPageToken):
		return "invalid_page_token", true
	case errors.Is(err, historydomain.ErrInvalidCustomer):
		return "invalid_customer_id", true
	case errors.Is(err, lifecycledomain.ErrInvalidReason):
		return "invalid_reason", true
	case errors.Is(err, aggregatedomain.ErrInvalidMonth):
		return "invalid_month", true
	case errors.Is(err, aggregatedomain.ErrInvalidRange),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return "invalid_range", true
	case errors.Is(err, auditdomain.ErrInvalidAction):
		return "invalid_action", true
	}
	return "", false
}

func validationErrorField(code string) string {
	switch code {
	case "unknown_status":
		return "status"
	case "invalid_name":
		return "name"
	case "invalid_email":
		return "email"
	case "invalid_customer_id":
		return "customer_id"
	case "invalid_status_filter":
		return "status"
	case "invalid_certificate_type":
		return "certificate_type"
	case "invalid_page_token":
		return "page_token"
	case "invalid_reason":
		return "reason"
	case "invalid_month":
		return "month"
	case "invalid_range":
		return "range"
	case "invalid_action":
		return "action"
	default:
		return "request"
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "unknown_status":
		return "status is not part of the lifecycle vocabulary"
	case "invalid_name":
		return "name is required"
	case "invalid_email":
		return "email is invalid"
	case "invalid_customer_id":
		return "customer id is invalid"
	case "invalid_status_filter":
		return "status filter is invalid"
	case "invalid_certificate_type":
		return "certificate type is invalid"
	case "invalid_page_token":
		return "page token is invalid"
	case "invalid_reason":
		return "reason exceeds the allowed length"
	case "invalid_month":
		return "month must use the YYYY-MM format"
	case "invalid_range":
		return "range is invalid"
	case "invalid_action":
		return "action is required"
	default:
		return "invalid request"
	}
}

// classifyErrorForLog feeds the request logger an error type and code
// without writing a response.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}

	var vErrs *ValidationErrors
	if errors.As(err, &vErrs) {
		if len(vErrs.Errors) > 0 {
			return "validation_error", vErrs.Errors[0].Code
		}
		return "validation_error", ""
	}
	if code, ok := validationErrorCode(err); ok {
		return "validation_error", code
	}

	var ruleErr *lifecycledomain.RuleViolationError
	if errors.As(err, &ruleErr) {
		return "rule_violation", string(ruleErr.From) + "->" + string(ruleErr.To)
	}

	switch {
	case errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, lifecycledomain.ErrNotFound):
		return "not_found", ""
	case errors.Is(err, lifecycledomain.ErrConcurrentModification):
		return "concurrent_modification", ""
	case errors.Is(err, reconcile.ErrAlreadyRunning):
		return "already_running", ""
	}
	return "internal_error", ""
}
