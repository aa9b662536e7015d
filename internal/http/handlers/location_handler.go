// README: Location handlers: in-trip position updates, live subscription and nearby drivers.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dispatch/internal/broadcast"
	"dispatch/internal/http/middleware"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/ride"
	"dispatch/internal/types"
)

const defaultNearbyRadiusMeters = 2000

type LocationHandler struct {
	location *location.Service
	rides    *ride.Service
	hub      *broadcast.Hub
}

func NewLocationHandler(locationSvc *location.Service, rides *ride.Service, hub *broadcast.Hub) *LocationHandler {
	return &LocationHandler{location: locationSvc, rides: rides, hub: hub}
}

// UpdateRideLocation records the in-trip position reported by the ride's driver.
func (h *LocationHandler) UpdateRideLocation(c *gin.Context) {
	p, ok := bindPoint(c)
	if !ok {
		return
	}
	r, err := h.location.ReportRideLocation(c.Request.Context(), location.RideLocationCommand{
		RideID: types.ID(c.Param("id")),
		Actor:  middleware.Caller(c),
		Point:  p,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

// Subscribe streams LocationChanged events for a ride over a websocket.
// Only the ride's passenger and driver may listen.
func (h *LocationHandler) Subscribe(c *gin.Context) {
	r, err := h.rides.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	actor := middleware.Caller(c)
	if r.PassengerID != actor.ID && !r.AssignedTo(actor.ID) {
		writeError(c, http.StatusForbidden, "not a participant of this ride")
		return
	}
	h.hub.Serve(c.Writer, c.Request, location.RideKey(r.ID))
}

// NearbyDrivers lists available drivers around ?lat=&lng= within ?radius= meters.
func (h *LocationHandler) NearbyDrivers(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(c, http.StatusBadRequest, "lat and lng query parameters are required")
		return
	}
	radius := float64(defaultNearbyRadiusMeters)
	if v := c.Query("radius"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "radius must be a number")
			return
		}
		radius = r
	}
	hits, err := h.location.NearbyDrivers(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": hits})
}
