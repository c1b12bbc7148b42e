package api

import (
	"errors"
	"log"
	"time"

	"hydrowave/internal/commands"
	"hydrowave/internal/db"
	"hydrowave/internal/devices"
	"hydrowave/internal/metrics"
	"hydrowave/internal/models"
	"hydrowave/internal/web/middleware"
	webmodels "hydrowave/internal/web/models"

	"github.com/gin-gonic/gin"
)

func RegisterCommandRoutes(r *gin.Engine, mw *middleware.MiddlewareManager, queue commands.Queue, tracker *devices.Tracker, dbConn *db.DB) {
	operator := r.Group("/devices/:device_id/commands")
	operator.Use(mw.RequireAuth())
	{
		// Queue a manual relay command for the device's next poll.
		operator.POST("", func(c *gin.Context) {
			deviceID := c.Param("device_id")
			var req webmodels.CreateCommandRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}

			known, err := tracker.Known(c, deviceID)
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to check device"})
				return
			}
			if !known {
				c.JSON(404, gin.H{"error": "Unknown device"})
				return
			}

			createdBy := "user:" + c.GetString("user_id")
			cmd, err := queue.Enqueue(c, deviceID, *req.RelayNumber, req.Action, req.DurationSeconds, createdBy)
			switch {
			case err == nil:
				metrics.CommandsEnqueued.WithLabelValues(deviceID).Inc()
				c.JSON(201, cmd)
			case errors.Is(err, commands.ErrDuplicate):
				c.JSON(409, gin.H{"error": "Identical command already pending"})
			case errors.Is(err, commands.ErrRelayOutOfRange), errors.Is(err, commands.ErrUnknownAction):
				c.JSON(400, gin.H{"error": err.Error()})
			default:
				log.Printf("WEB: Failed to enqueue command for %s: %v", deviceID, err)
				c.JSON(500, gin.H{"error": "Failed to enqueue command"})
			}
		})
	}

	device := r.Group("")
	device.Use(mw.RequireDeviceKey(), mw.DeviceRateLimit())
	{
		// Firmware poll. Returned commands are flipped to sent and will
		// not be delivered again.
		device.GET("/devices/:device_id/commands", func(c *gin.Context) {
			deviceID := c.Param("device_id")
			delivered, err := queue.Poll(c, deviceID)
			if err != nil {
				log.Printf("WEB: Poll failed for %s: %v", deviceID, err)
				c.JSON(500, gin.H{"error": "Failed to poll commands"})
				return
			}

			// A poll is a liveness contact even when the queue is empty.
			if err := tracker.Touch(c, deviceID); err != nil {
				log.Printf("WEB: Failed to refresh liveness for %s: %v", deviceID, err)
			}
			metrics.DeviceContacts.WithLabelValues(deviceID).Inc()

			if delivered == nil {
				delivered = []models.RelayCommand{}
			}
			c.JSON(200, gin.H{"commands": delivered})
		})

		// Firmware outcome report.
		device.PUT("/commands/:command_id", func(c *gin.Context) {
			commandID := c.Param("command_id")
			var req webmodels.ReportCommandRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}

			cmd, err := queue.Report(c, commandID, models.CommandStatus(req.Status), req.ErrorMessage)
			switch {
			case err == nil:
			case errors.Is(err, commands.ErrNotFound):
				c.JSON(404, gin.H{"error": "Unknown command"})
				return
			case errors.Is(err, commands.ErrInvalidStatus):
				c.JSON(400, gin.H{"error": "Invalid status"})
				return
			default:
				log.Printf("WEB: Failed to record report for command %s: %v", commandID, err)
				c.JSON(500, gin.H{"error": "Failed to record report"})
				return
			}
			metrics.CommandsReported.WithLabelValues(string(cmd.Status)).Inc()

			if cmd.Status == models.CommandFailed {
				alert := &models.SystemAlert{
					DeviceID:      cmd.DeviceID,
					AlertType:     models.AlertWarning,
					AlertCategory: models.AlertCategoryRelay,
					Message:       "Relay command failed: " + cmd.ErrorMessage,
					CreatedAt:     time.Now(),
				}
				if err := dbConn.InsertAlert(c, alert); err != nil {
					log.Printf("WEB: Failed to raise alert for failed command %s: %v", commandID, err)
				} else {
					metrics.AlertsRaised.WithLabelValues(alert.AlertCategory).Inc()
				}
			}

			c.JSON(200, cmd)
		})
	}

	inspect := r.Group("/commands")
	inspect.Use(mw.RequireAuth())
	{
		inspect.GET("/:command_id", func(c *gin.Context) {
			cmd, err := queue.Get(c, c.Param("command_id"))
			if errors.Is(err, commands.ErrNotFound) {
				c.JSON(404, gin.H{"error": "Unknown command"})
				return
			}
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to fetch command"})
				return
			}
			c.JSON(200, cmd)
		})
	}
}
