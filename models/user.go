package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type Role string

const (
	RoleVolunteer Role = "volunteer"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleVolunteer, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Actor is the already-authenticated caller of an operation.
type Actor struct {
	ID   primitive.ObjectID `json:"id"`
	Role Role               `json:"role"`
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
