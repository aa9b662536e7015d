// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dispatch/internal/broadcast"
	"dispatch/internal/http/handlers"
	"dispatch/internal/http/middleware"
	"dispatch/internal/infra"
	"dispatch/internal/modules/fare"
	"dispatch/internal/modules/location"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/ride"
	"dispatch/internal/types"
)

type RouterDeps struct {
	Rides    *ride.Service
	Matching *matching.Service
	Location *location.Service
	Fares    *fare.Service
	Hub      *broadcast.Hub
	Verifier infra.TokenVerifier
}

func NewRouter(deps RouterDeps, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	rideHandler := handlers.NewRideHandler(deps.Rides, deps.Fares)
	locationHandler := handlers.NewLocationHandler(deps.Location, deps.Rides, deps.Hub)
	driverHandler := handlers.NewDriverHandler(deps.Matching, deps.Location)

	api.GET("/rides/:id", rideHandler.Get)
	api.GET("/rides/:id/events", rideHandler.Events)
	api.GET("/rides/:id/fare", rideHandler.Fare)
	api.GET("/rides/:id/ws", locationHandler.Subscribe)

	passenger := api.Group("", middleware.RequireRole(types.RolePassenger))
	passenger.POST("/rides", rideHandler.RequestRide)
	passenger.GET("/drivers/nearby", locationHandler.NearbyDrivers)

	drv := api.Group("", middleware.RequireRole(types.RoleDriver))
	drv.POST("/rides/:id/accept", rideHandler.Accept)
	drv.POST("/rides/:id/reject", rideHandler.Reject)
	drv.POST("/rides/:id/start", rideHandler.Start)
	drv.POST("/rides/:id/complete", rideHandler.Complete)
	drv.POST("/rides/:id/transitions", rideHandler.Transition)
	drv.PUT("/rides/:id/location", locationHandler.UpdateRideLocation)
	drv.PUT("/drivers/me/location", driverHandler.UpdateLocation)
	drv.GET("/drivers/me/match", driverHandler.Match)
	drv.GET("/drivers/me/candidates", driverHandler.Candidates)

	return r
}
