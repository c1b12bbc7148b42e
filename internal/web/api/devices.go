package api

import (
	"context"
	"log"

	"hydrowave/internal/devices"
	"hydrowave/internal/models"
	"hydrowave/internal/web/middleware"

	"github.com/gin-gonic/gin"
)

// TelemetryEngine ingests device contact reports.
type TelemetryEngine interface {
	HandleTelemetry(ctx context.Context, deviceID string, tel models.Telemetry) error
}

type telemetryRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
	models.Telemetry
}

func RegisterDeviceRoutes(r *gin.Engine, mw *middleware.MiddlewareManager, engine TelemetryEngine, tracker *devices.Tracker) {
	device := r.Group("/device")
	device.Use(mw.RequireDeviceKey(), mw.DeviceRateLimit())
	{
		// Firmware telemetry report. Refreshes liveness and triggers
		// on_change rule evaluation.
		device.POST("/status", func(c *gin.Context) {
			var req telemetryRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			if err := engine.HandleTelemetry(c, req.DeviceID, req.Telemetry); err != nil {
				log.Printf("WEB: Failed to ingest telemetry from %s: %v", req.DeviceID, err)
				c.JSON(500, gin.H{"error": "Failed to ingest telemetry"})
				return
			}
			c.JSON(200, gin.H{"status": "ok"})
		})
	}

	operator := r.Group("/devices")
	operator.Use(mw.RequireAuth())
	{
		operator.GET("/:device_id/status", func(c *gin.Context) {
			deviceID := c.Param("device_id")
			status, minutes, err := tracker.Status(c, deviceID)
			if err == devices.ErrUnknownDevice {
				c.JSON(404, gin.H{"error": "Unknown device"})
				return
			}
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to fetch device status"})
				return
			}
			c.JSON(200, gin.H{
				"device_status": status,
				"online_status": gin.H{
					"is_online":               status.IsOnline,
					"minutes_since_last_seen": minutes,
				},
			})
		})
	}
}
