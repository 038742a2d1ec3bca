package handlers

import (
	"github.com/gin-gonic/gin"

	"campusguard/internal/models"
	"campusguard/internal/services"
	"campusguard/internal/utils"
	"campusguard/internal/validators"
)

type GuardianHandler struct {
	directory *services.DirectoryService
	service   services.EmergencyService
}

func NewGuardianHandler(directory *services.DirectoryService, service services.EmergencyService) *GuardianHandler {
	return &GuardianHandler{
		directory: directory,
		service:   service,
	}
}

// UpdateLocation is the REST twin of the realtime location_update message.
func (h *GuardianHandler) UpdateLocation(c *gin.Context) {
	userID, role, ok := identity(c)
	if !ok {
		return
	}

	var req validators.LocationRequest
	if !bindJSON(c, &req) {
		return
	}

	guardian, err := h.directory.UpsertLocation(c.Request.Context(), userID, role, req.Location())
	if err != nil {
		respondServiceError(c, err, "Guardian")
		return
	}

	utils.SuccessResponse(c, "Location updated", guardian)
}

func (h *GuardianHandler) SetAvailability(c *gin.Context) {
	userID, role, ok := identity(c)
	if !ok {
		return
	}

	var req validators.AvailabilityRequest
	if !bindJSON(c, &req) {
		return
	}

	var (
		guardian *models.Guardian
		err      error
	)
	if *req.Active {
		guardian, err = h.directory.Register(c.Request.Context(), userID, role)
	} else {
		guardian, err = h.directory.SetActive(c.Request.Context(), userID, false)
	}
	if err != nil {
		respondServiceError(c, err, "Guardian")
		return
	}

	utils.SuccessResponse(c, "Availability updated", guardian)
}

// Nearby lists the closest active guardians, optionally within radius_m meters.
func (h *GuardianHandler) Nearby(c *gin.Context) {
	var query validators.NearbyQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.BadRequestResponse(c, "Invalid query parameters")
		return
	}
	if errs := validators.ValidateStruct(&query); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Fields())
		return
	}

	limit := query.Limit
	if limit == 0 {
		limit = utils.DefaultNearestFanOut
	}

	location := query.Location()
	ranked, err := h.service.FindNearest(c.Request.Context(), location, limit)
	if err != nil {
		respondServiceError(c, err, "Guardian")
		return
	}

	if query.RadiusM > 0 {
		within := ranked[:0]
		for _, r := range ranked {
			if utils.IsWithinRadius(location, *r.Guardian.Location, query.RadiusM) {
				within = append(within, r)
			}
		}
		ranked = within
	}

	utils.SuccessResponseWithMeta(c, "Nearby guardians", ranked, &utils.Meta{Count: len(ranked)})
}
