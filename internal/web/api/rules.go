package api

import (
	"errors"
	"log"

	"hydrowave/internal/db"
	"hydrowave/internal/models"
	"hydrowave/internal/rules"
	"hydrowave/internal/web/middleware"

	"github.com/gin-gonic/gin"
)

// EngineNotifier is told about rule changes so triggers and cooldown
// state stay in sync with the stored rule set.
type EngineNotifier interface {
	RuleChanged(rule *models.Rule)
	RuleRemoved(ruleID string)
}

func RegisterRuleRoutes(r *gin.Engine, mw *middleware.MiddlewareManager, dbConn *db.DB, notifier EngineNotifier) {
	group := r.Group("/rules")
	group.Use(mw.RequireAuth())
	{
		group.POST("", func(c *gin.Context) {
			var rule models.Rule
			if err := c.ShouldBindJSON(&rule); err != nil {
				c.JSON(400, gin.H{"error": "Invalid rule document: " + err.Error()})
				return
			}
			result := rules.Validate(&rule)
			if !result.Valid {
				c.JSON(400, result)
				return
			}
			if err := dbConn.InsertRule(c, &rule); err != nil {
				log.Printf("WEB: Failed to insert rule %s: %v", rule.ID, err)
				c.JSON(500, gin.H{"error": "Failed to save rule"})
				return
			}
			notifier.RuleChanged(&rule)
			c.JSON(201, gin.H{"rule": rule, "warnings": result.Warnings})
		})

		group.GET("", func(c *gin.Context) {
			var (
				list []models.Rule
				err  error
			)
			if deviceID := c.Query("device_id"); deviceID != "" {
				list, err = dbConn.GetRulesByDevice(c, deviceID)
			} else {
				list, err = dbConn.GetAllRules(c)
			}
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to fetch rules"})
				return
			}
			if list == nil {
				list = []models.Rule{}
			}
			c.JSON(200, gin.H{"rules": list})
		})

		group.GET("/:rule_id", func(c *gin.Context) {
			rule, err := dbConn.GetRule(c, c.Param("rule_id"))
			if errors.Is(err, db.ErrNotFound) {
				c.JSON(404, gin.H{"error": "Unknown rule"})
				return
			}
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to fetch rule"})
				return
			}
			c.JSON(200, gin.H{"rule": rule, "description": rules.Describe(rule)})
		})

		group.PUT("/:rule_id", func(c *gin.Context) {
			var rule models.Rule
			if err := c.ShouldBindJSON(&rule); err != nil {
				c.JSON(400, gin.H{"error": "Invalid rule document: " + err.Error()})
				return
			}
			rule.ID = c.Param("rule_id")
			result := rules.Validate(&rule)
			if !result.Valid {
				c.JSON(400, result)
				return
			}
			err := dbConn.UpdateRule(c, &rule)
			if errors.Is(err, db.ErrNotFound) {
				c.JSON(404, gin.H{"error": "Unknown rule"})
				return
			}
			if err != nil {
				log.Printf("WEB: Failed to update rule %s: %v", rule.ID, err)
				c.JSON(500, gin.H{"error": "Failed to save rule"})
				return
			}
			notifier.RuleChanged(&rule)
			c.JSON(200, gin.H{"rule": rule, "warnings": result.Warnings})
		})

		group.DELETE("/:rule_id", func(c *gin.Context) {
			ruleID := c.Param("rule_id")
			err := dbConn.DeleteRule(c, ruleID)
			if errors.Is(err, db.ErrNotFound) {
				c.JSON(404, gin.H{"error": "Unknown rule"})
				return
			}
			if err != nil {
				c.JSON(500, gin.H{"error": "Failed to delete rule"})
				return
			}
			notifier.RuleRemoved(ruleID)
			c.JSON(200, gin.H{"status": "deleted"})
		})

		// Dry validation: returns the full report without saving.
		group.POST("/validate", func(c *gin.Context) {
			var rule models.Rule
			if err := c.ShouldBindJSON(&rule); err != nil {
				c.JSON(400, gin.H{"error": "Invalid rule document: " + err.Error()})
				return
			}
			result := rules.Validate(&rule)
			c.JSON(200, gin.H{
				"validation":  result,
				"description": rules.Describe(&rule),
			})
		})
	}
}
