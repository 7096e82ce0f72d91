package domain

// User is the read-only projection of an account used by the auth gate.
type User struct {
	ID       int64
	IsActive bool
	RoleName string
}
