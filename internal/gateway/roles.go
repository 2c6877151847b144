package gateway

// Role is what a connected client may do.
type Role string

const (
	// RoleAdmin may call every method.
	RoleAdmin Role = "admin"
	// RoleViewer may only call methods registered as read-only.
	RoleViewer Role = "viewer"
)
