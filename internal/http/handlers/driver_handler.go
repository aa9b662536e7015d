// README: Driver handlers: position reports, ride matching and candidate listing.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/http/middleware"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/matching"
)

type DriverHandler struct {
	matching *matching.Service
	location *location.Service
}

func NewDriverHandler(matchingSvc *matching.Service, locationSvc *location.Service) *DriverHandler {
	return &DriverHandler{matching: matchingSvc, location: locationSvc}
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	p, ok := bindPoint(c)
	if !ok {
		return
	}
	if err := h.location.ReportDriverLocation(c.Request.Context(), middleware.Caller(c).ID, p); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"position": p})
}

// Match returns the pending ride picked for the caller. It does not assign it.
func (h *DriverHandler) Match(c *gin.Context) {
	r, err := h.matching.MatchForDriver(c.Request.Context(), middleware.Caller(c).ID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *DriverHandler) Candidates(c *gin.Context) {
	cands, err := h.matching.Candidates(c.Request.Context(), middleware.Caller(c).ID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"candidates": cands})
}
