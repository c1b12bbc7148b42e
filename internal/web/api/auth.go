package api

import (
	"strconv"

	"hydrowave/auth"
	"hydrowave/internal/web/middleware"
	webmodels "hydrowave/internal/web/models"

	"github.com/gin-gonic/gin"
)

func RegisterAuthRoutes(router *gin.Engine, authModule *auth.AuthModule, mw *middleware.MiddlewareManager) {
	r := router.Group("/auth")
	{
		r.POST("/login", func(c *gin.Context) {
			var loginRequest webmodels.LoginRequest
			if err := c.ShouldBindJSON(&loginRequest); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			token, err := authModule.LoginWithJWT(c, loginRequest.Username, loginRequest.Password)
			if err != nil {
				c.JSON(401, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"token": token})
		})
		r.POST("/register", func(c *gin.Context) {
			var registerRequest webmodels.RegisterRequest
			if err := c.ShouldBindJSON(&registerRequest); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			token, err := authModule.RegisterWithJWT(c, registerRequest.Username, registerRequest.Password, registerRequest.Email)
			if err != nil {
				c.JSON(400, gin.H{"error": err.Error()})
				return
			}
			c.JSON(201, gin.H{"token": token})
		})
		r.POST("/logout", func(c *gin.Context) {
			if err := authModule.LogoutJWT(c, c.GetHeader("Authorization")); err != nil {
				c.JSON(400, gin.H{"error": "Invalid token"})
				return
			}
			c.JSON(200, gin.H{"status": "logged out"})
		})
	}

	account := router.Group("/auth")
	account.Use(mw.RequireAuth())
	{
		account.POST("/password", func(c *gin.Context) {
			var req webmodels.ChangePasswordRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"error": "Invalid request"})
				return
			}
			operatorID, err := strconv.Atoi(c.GetString("user_id"))
			if err != nil {
				c.JSON(401, gin.H{"error": "Unauthorized"})
				return
			}
			if err := authModule.ChangePassword(c, operatorID, req.OldPassword, req.NewPassword); err != nil {
				c.JSON(400, gin.H{"error": err.Error()})
				return
			}
			c.JSON(200, gin.H{"status": "password changed"})
		})
	}
}
