package common

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/payout-service/payout_service/internal/domain/entities"
)

// GetUserID extracts and validates user ID from context
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, fmt.Errorf("user ID not found in context")
	}

	switch v := userIDVal.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.Parse(v)
	default:
		return uuid.Nil, fmt.Errorf("invalid user ID type in context")
	}
}

// RespondError sends a standardized error response
func RespondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// RespondUnauthorized sends an unauthorized error
func RespondUnauthorized(c *gin.Context, message string) {
	RespondError(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// RespondBadRequest sends a bad request error
func RespondBadRequest(c *gin.Context, message string, details ...map[string]interface{}) {
	var det map[string]interface{}
	if len(details) > 0 {
		det = details[0]
	}
	RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", message, det)
}

// RespondInternalError sends an internal server error
func RespondInternalError(c *gin.Context, message string) {
	RespondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

// RespondNotFound sends a not found error
func RespondNotFound(c *gin.Context, message string) {
	RespondError(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// RespondForbidden sends a forbidden error
func RespondForbidden(c *gin.Context, message string) {
	RespondError(c, http.StatusForbidden, "FORBIDDEN", message, nil)
}

// RespondConflict sends a conflict error
func RespondConflict(c *gin.Context, message string) {
	RespondError(c, http.StatusConflict, "CONFLICT", message, nil)
}

// RespondSuccess sends a success response with data
func RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondCreated sends a created response with data
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// ParseTime parses a string to time.Time (RFC3339 format)
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}
	return time.Parse(time.RFC3339, s)
}

// ParseIntParam parses a query parameter to int with default value
func ParseIntParam(c *gin.Context, param string, defaultVal int) int {
	if val := c.Query(param); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// UserContext holds extracted user information from the request context
type UserContext struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// ExtractUserContext extracts user context from gin context, returns error if unauthorized
func ExtractUserContext(c *gin.Context) (*UserContext, error) {
	userID, err := GetUserID(c)
	if err != nil {
		return nil, fmt.Errorf("unauthorized: %w", err)
	}

	return &UserContext{
		UserID: userID,
		Email:  c.GetString("user_email"),
		Role:   c.GetString("user_role"),
	}, nil
}

// RequireUserContext extracts user context or sends unauthorized error
func RequireUserContext(c *gin.Context) *UserContext {
	ctx, err := ExtractUserContext(c)
	if err != nil {
		RespondUnauthorized(c, "User not authenticated")
		return nil
	}
	return ctx
}

// RequireAdminContext extracts user context and verifies admin role
func RequireAdminContext(c *gin.Context) *UserContext {
	ctx := RequireUserContext(c)
	if ctx == nil {
		return nil
	}

	if ctx.Role != "admin" && ctx.Role != "super_admin" {
		RespondForbidden(c, "Admin privileges required")
		return nil
	}

	return ctx
}

// PaginationParams holds pagination parameters
type PaginationParams struct {
	Limit  int
	Offset int
}

// ExtractPagination extracts pagination parameters from query
func ExtractPagination(c *gin.Context, defaultLimit, maxLimit int) PaginationParams {
	limit := ParseIntParam(c, "limit", defaultLimit)
	if limit > maxLimit {
		limit = maxLimit
	}
	if limit < 1 {
		limit = defaultLimit
	}

	offset := ParseIntParam(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}

// BindAndValidate binds JSON to a struct and validates it
// Returns true if successful, false if error was sent
func BindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]interface{}, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fmt.Sprintf("failed on %q", fe.Tag())
			}
			RespondBadRequest(c, "Validation failed", fields)
			return false
		}
		RespondBadRequest(c, "Invalid request format", map[string]interface{}{"error": err.Error()})
		return false
	}
	return true
}

// ParsePathUUID parses a UUID from path parameter
// Returns true if successful, false if error was sent
func ParsePathUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	str := c.Param(param)
	if str == "" {
		RespondBadRequest(c, fmt.Sprintf("Missing %s parameter", param), nil)
		return uuid.Nil, false
	}

	id, err := uuid.Parse(str)
	if err != nil {
		RespondBadRequest(c, fmt.Sprintf("Invalid %s format", param), map[string]interface{}{"value": str})
		return uuid.Nil, false
	}

	return id, true
}

// HandleServiceError maps domain errors to HTTP responses.
// Returns true if an error was handled, false if err was nil.
func HandleServiceError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	if re, ok := entities.IsRoutingError(err); ok {
		RespondError(c, http.StatusUnprocessableEntity, string(re.Code), re.Error(), map[string]interface{}{
			"country": re.Country,
			"method":  string(re.Method),
		})
		return true
	}

	switch {
	case errors.Is(err, entities.ErrWithdrawalNotFound):
		RespondNotFound(c, "Withdrawal not found")
	case errors.Is(err, entities.ErrInsufficientBalance):
		RespondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", err.Error(), nil)
	case errors.Is(err, entities.ErrAmountOutOfBounds):
		RespondBadRequest(c, err.Error())
	case errors.Is(err, entities.ErrDailyLimitExceeded), errors.Is(err, entities.ErrMonthlyLimitExceeded):
		RespondError(c, http.StatusUnprocessableEntity, "LIMIT_EXCEEDED", err.Error(), nil)
	case errors.Is(err, entities.ErrNotCancellable):
		RespondConflict(c, err.Error())
	case errors.Is(err, entities.ErrStatusConflict):
		RespondConflict(c, err.Error())
	case errors.Is(err, entities.ErrRetriesExhausted):
		RespondConflict(c, err.Error())
	default:
		RespondInternalError(c, "An unexpected error occurred")
	}

	return true
}
