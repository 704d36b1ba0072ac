package model

// Role names carried in the "role" claim of staff and service tokens.
// Tokens are minted outside this service; it only verifies them.
const (
	RoleAdmin   = "ADMIN"   // box office administrators
	RoleStaff   = "STAFF"   // door staff operating scanners
	RolePayment = "PAYMENT" // payment provider callback / polling job
)
