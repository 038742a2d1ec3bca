package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusguard/internal/middleware"
	"campusguard/internal/models"
	"campusguard/internal/services"
	"campusguard/internal/utils"
	"campusguard/internal/validators"
)

// respondServiceError maps engine errors onto the API error taxonomy.
func respondServiceError(c *gin.Context, err error, resource string) {
	var throttled *services.ThrottledError
	switch {
	case errors.As(err, &throttled):
		utils.TooManyRequestsResponse(c, "THROTTLED", "Please wait before submitting again", throttled.RetryAfter)
	case errors.Is(err, services.ErrAlreadyAcknowledged):
		utils.ErrorResponse(c, http.StatusConflict, "ALREADY_ACKNOWLEDGED", resource+" already acknowledged")
	case errors.Is(err, services.ErrAlreadyResolved):
		utils.ErrorResponse(c, http.StatusConflict, "ALREADY_RESOLVED", resource+" already resolved")
	case errors.Is(err, services.ErrAlertNotFound):
		utils.NotFoundResponse(c, resource)
	case errors.Is(err, services.ErrGuardianNotFound):
		utils.NotFoundResponse(c, "Guardian")
	case errors.Is(err, services.ErrNotesTooLong):
		utils.ErrorResponse(c, http.StatusBadRequest, "NOTES_TOO_LONG", "Resolution notes are too long")
	case errors.Is(err, services.ErrInvalidLocation):
		utils.ValidationErrorResponse(c, map[string]string{"location": err.Error()})
	case errors.Is(err, services.ErrMissingDestination):
		utils.ValidationErrorResponse(c, map[string]string{"destination": err.Error()})
	case errors.Is(err, services.ErrNotGuardian):
		utils.ForbiddenResponse(c)
	default:
		utils.InternalServerErrorResponse(c)
	}
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return false
	}
	if errs := validators.ValidateStruct(req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		utils.BadRequestResponse(c, "Invalid request body")
		return false
	}
	return true
}

func alertIDParam(c *gin.Context) (primitive.ObjectID, bool) {
	var param validators.IDParam
	if err := c.ShouldBindUri(&param); err != nil || len(validators.ValidateStruct(&param)) > 0 {
		utils.BadRequestResponse(c, "Invalid alert ID")
		return primitive.NilObjectID, false
	}
	return param.ObjectID(), true
}

func identity(c *gin.Context) (primitive.ObjectID, models.Role, bool) {
	userID, role, ok := middleware.CurrentIdentity(c)
	if !ok {
		utils.UnauthorizedResponse(c)
	}
	return userID, role, ok
}

func parseStatus(c *gin.Context) (models.AlertStatus, bool) {
	raw := c.Query("status")
	if raw == "" {
		return "", true
	}
	status := models.AlertStatus(raw)
	if !status.Valid() {
		utils.ValidationErrorResponse(c, map[string]string{"status": "unknown status"})
		return "", false
	}
	return status, true
}
