package types

type Role string

const (
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   ID
	Role Role
}

func (a Actor) IsDriver() bool {
	return a.Role == RoleDriver
}
