package api

import (
	"errors"
	"log"

	"hydrowave/internal/db"
	"hydrowave/internal/models"
	"hydrowave/internal/web/middleware"
	webmodels "hydrowave/internal/web/models"

	"github.com/gin-gonic/gin"
)

const (
	recentExecutionLimit = 20
	openAlertLimit       = 50
)

func RegisterEngineRoutes(r *gin.Engine, mw *middleware.MiddlewareManager, dbConn *db.DB) {
	group := r.Group("/devices/:device_id/engine")
	group.Use(mw.RequireAuth())
	{
		group.GET("", func(c *gin.Context) {
			deviceID := c.Param("device_id")
			status, err := dbConn.GetEngineStatus(c, deviceID)
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to fetch engine status"})
				return
			}
			if status.TotalRules, err = dbConn.CountRulesByDevice(c, deviceID); err != nil {
				c.JSON(500, gin.H{"error": "Failed to count rules"})
				return
			}

			alerts, err := dbConn.UnacknowledgedAlerts(c, deviceID, openAlertLimit)
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to fetch alerts"})
				return
			}
			execs, err := dbConn.RecentExecutions(c, deviceID, recentExecutionLimit)
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to fetch executions"})
				return
			}
			if alerts == nil {
				alerts = []models.SystemAlert{}
			}
			if execs == nil {
				execs = []models.RuleExecution{}
			}

			c.JSON(200, gin.H{
				"engine_status":         status,
				"unacknowledged_alerts": alerts,
				"recent_executions":     execs,
			})
		})

		// Toggle engine switches. Only fields present in the body change.
		group.POST("", func(c *gin.Context) {
			deviceID := c.Param("device_id")
			var req webmodels.EngineToggleRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}

			status, err := dbConn.GetEngineStatus(c, deviceID)
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to fetch engine status"})
				return
			}
			if req.EngineEnabled != nil {
				status.EngineEnabled = *req.EngineEnabled
			}
			if req.DryRunMode != nil {
				status.DryRunMode = *req.DryRunMode
			}
			if req.EmergencyMode != nil {
				status.EmergencyMode = *req.EmergencyMode
			}
			if req.ManualOverride != nil {
				status.ManualOverride = *req.ManualOverride
			}
			if req.LockedRelays != nil {
				for _, relay := range *req.LockedRelays {
					if relay < 0 || relay >= models.MaxRelays {
						c.JSON(400, gin.H{"error": "Locked relay number out of range"})
						return
					}
				}
				status.LockedRelays = *req.LockedRelays
			}

			if err := dbConn.UpsertEngineStatus(c, status); err != nil {
				log.Printf("WEB: Failed to update engine status for %s: %v", deviceID, err)
				c.JSON(500, gin.H{"error": "Failed to update engine status"})
				return
			}
			c.JSON(200, gin.H{"engine_status": status})
		})
	}

	alerts := r.Group("/alerts")
	alerts.Use(mw.RequireAuth())
	{
		alerts.POST("/:alert_id/acknowledge", func(c *gin.Context) {
			err := dbConn.AcknowledgeAlert(c, c.Param("alert_id"))
			if errors.Is(err, db.ErrNotFound) {
				c.JSON(404, gin.H{"error": "Unknown or already acknowledged alert"})
				return
			}
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to acknowledge alert"})
				return
			}
			c.JSON(200, gin.H{"status": "acknowledged"})
		})
	}
}
