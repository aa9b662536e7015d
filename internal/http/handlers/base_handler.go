// README: Base handler utilities (JSON helpers, request payloads, error mapping).
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/fare"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/ride"
	"dispatch/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// pointRequest uses pointers so a missing coordinate is a 400, not (0,0).
type pointRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func (p pointRequest) point() types.Point {
	return types.Point{Lat: *p.Lat, Lng: *p.Lng}
}

func bindPoint(c *gin.Context) (types.Point, bool) {
	var req pointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return types.Point{}, false
	}
	return req.point(), true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps module errors onto HTTP status codes.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrValidation):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrNotFound),
		errors.Is(err, driver.ErrNotFound),
		errors.Is(err, matching.ErrNoMatchFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ride.ErrNotAssignedToCaller):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ride.ErrInvalidState),
		errors.Is(err, ride.ErrIllegalTransition),
		errors.Is(err, ride.ErrAlreadyAssigned),
		errors.Is(err, ride.ErrActiveRide),
		errors.Is(err, ride.ErrDriverBusy),
		errors.Is(err, location.ErrRideNotActive),
		errors.Is(err, fare.ErrRideNotCompleted),
		errors.Is(err, matching.ErrLocationUnavailable):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// canView reports whether actor may read a ride: its passenger, its driver,
// or any driver while the ride is still pending.
func canView(actor types.Actor, r *ride.Ride) bool {
	switch actor.Role {
	case types.RolePassenger:
		return r.PassengerID == actor.ID
	case types.RoleDriver:
		return r.Status == ride.StatusPending || r.AssignedTo(actor.ID)
	}
	return false
}
