package models

// LoginRequest is the /auth/login body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest is the /auth/register body.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Email    string `json:"email"`
}

// ChangePasswordRequest is the /auth/password body.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// CreateCommandRequest is the body for queuing a relay command.
type CreateCommandRequest struct {
	RelayNumber     *int   `json:"relay_number" binding:"required"`
	Action          string `json:"action" binding:"required"`
	DurationSeconds *int   `json:"duration_seconds"`
}

// ReportCommandRequest is the device's outcome report for a command.
type ReportCommandRequest struct {
	Status       string `json:"status" binding:"required"`
	ErrorMessage string `json:"error_message"`
}

// EngineToggleRequest updates per-device engine switches. Nil fields
// are left unchanged.
type EngineToggleRequest struct {
	EngineEnabled  *bool  `json:"engine_enabled"`
	DryRunMode     *bool  `json:"dry_run_mode"`
	EmergencyMode  *bool  `json:"emergency_mode"`
	ManualOverride *bool  `json:"manual_override"`
	LockedRelays   *[]int `json:"locked_relays"`
}
