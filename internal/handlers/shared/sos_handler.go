package handlers

import (
	"github.com/gin-gonic/gin"

	"campusguard/internal/models"
	"campusguard/internal/services"
	"campusguard/internal/utils"
	"campusguard/internal/validators"
)

type SOSHandler struct {
	alertHandler
}

func NewSOSHandler(service services.EmergencyService) *SOSHandler {
	return &SOSHandler{alertHandler{service: service, kind: models.AlertKindSOS, resource: "Alert"}}
}

// Submit raises an SOS at the caller's position.
func (h *SOSHandler) Submit(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}

	var req validators.SOSRequest
	if !bindJSON(c, &req) {
		return
	}

	alert, err := h.service.SubmitSOS(c.Request.Context(), userID, req.Location())
	if err != nil {
		respondServiceError(c, err, "Alert")
		return
	}

	utils.CreatedResponse(c, "Alert raised", alert)
}
