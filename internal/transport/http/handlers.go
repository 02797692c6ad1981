package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/termrelay/internal/app"
	"github.com/dkeye/termrelay/internal/domain"
)

// HubView is the read-only slice of the hub the introspection endpoints need.
type HubView interface {
	Devices() []app.DeviceState
	Device(id domain.DeviceID) (app.DeviceState, bool)
	ConnCount() int
}

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

type DevicesResponse struct {
	Devices []app.DeviceState `json:"devices"`
}

func RegisterHealth(r gin.IRoutes, hub HubView) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{Status: "ok", Connections: hub.ConnCount()})
	})
}

// RegisterDevices mounts the device listing under r.
func RegisterDevices(r gin.IRoutes, hub HubView) {
	r.GET("/devices", func(c *gin.Context) {
		c.JSON(http.StatusOK, DevicesResponse{Devices: hub.Devices()})
	})
	r.GET("/devices/:id", func(c *gin.Context) {
		id := domain.DeviceID(c.Param("id"))
		if err := id.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		st, ok := hub.Device(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		c.JSON(http.StatusOK, st)
	})
}
