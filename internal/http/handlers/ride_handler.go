// README: Ride handlers: request, read, audit trail, lifecycle transitions and fare.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/http/middleware"
	"dispatch/internal/modules/fare"
	"dispatch/internal/modules/ride"
	"dispatch/internal/types"
)

type RideHandler struct {
	rides *ride.Service
	fares *fare.Service
}

func NewRideHandler(rides *ride.Service, fares *fare.Service) *RideHandler {
	return &RideHandler{rides: rides, fares: fares}
}

type requestRideBody struct {
	Pickup pointRequest `json:"pickup" binding:"required"`
}

// RequestRide creates a pending ride for the calling passenger.
func (h *RideHandler) RequestRide(c *gin.Context) {
	var body requestRideBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	r, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		Actor:  middleware.Caller(c),
		Pickup: body.Pickup.point(),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

func (h *RideHandler) Get(c *gin.Context) {
	r, ok := h.visibleRide(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Events(c *gin.Context) {
	r, ok := h.visibleRide(c)
	if !ok {
		return
	}
	events, err := h.rides.Events(c.Request.Context(), r.ID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": events})
}

func (h *RideHandler) Fare(c *gin.Context) {
	r, ok := h.visibleRide(c)
	if !ok {
		return
	}
	f, err := h.fares.FareForRide(c.Request.Context(), r.ID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, f)
}

func (h *RideHandler) Accept(c *gin.Context) {
	h.transition(c, func(ctx context.Context, id types.ID, a types.Actor) (*ride.Ride, error) {
		return h.rides.Accept(ctx, ride.AcceptCommand{RideID: id, Actor: a})
	})
}

func (h *RideHandler) Reject(c *gin.Context) {
	h.transition(c, func(ctx context.Context, id types.ID, a types.Actor) (*ride.Ride, error) {
		return h.rides.Reject(ctx, ride.RejectCommand{RideID: id, Actor: a})
	})
}

func (h *RideHandler) Start(c *gin.Context) {
	h.transition(c, func(ctx context.Context, id types.ID, a types.Actor) (*ride.Ride, error) {
		return h.rides.Start(ctx, ride.StartCommand{RideID: id, Actor: a})
	})
}

func (h *RideHandler) Complete(c *gin.Context) {
	h.transition(c, func(ctx context.Context, id types.ID, a types.Actor) (*ride.Ride, error) {
		return h.rides.Complete(ctx, ride.CompleteCommand{RideID: id, Actor: a})
	})
}

type transitionBody struct {
	To ride.Status `json:"to" binding:"required"`
}

// Transition moves a ride to the status named in the body.
func (h *RideHandler) Transition(c *gin.Context) {
	var body transitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if !body.To.Valid() {
		writeError(c, http.StatusBadRequest, "unknown status "+string(body.To))
		return
	}
	h.transition(c, func(ctx context.Context, id types.ID, a types.Actor) (*ride.Ride, error) {
		return h.rides.Transition(ctx, ride.TransitionCommand{RideID: id, To: body.To, Actor: a})
	})
}

func (h *RideHandler) transition(c *gin.Context, op func(context.Context, types.ID, types.Actor) (*ride.Ride, error)) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing ride id")
		return
	}
	r, err := op(c.Request.Context(), types.ID(id), middleware.Caller(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) visibleRide(c *gin.Context) (*ride.Ride, bool) {
	r, err := h.rides.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDomainError(c, err)
		return nil, false
	}
	if !canView(middleware.Caller(c), r) {
		writeError(c, http.StatusForbidden, "ride belongs to another user")
		return nil, false
	}
	return r, true
}
