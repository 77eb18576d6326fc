package models

import "time"

type Role string

const (
	RoleClient     Role = "CLIENT"
	RoleFreelancer Role = "FREELANCER"
	RoleAdmin      Role = "ADMIN"
)

func ValidRole(r Role) bool {
	switch r {
	case RoleClient, RoleFreelancer, RoleAdmin:
		return true
	default:
		return false
	}
}

type User struct {
	Id                 string    `json:"id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	FirstName          string    `json:"firstName"`
	LastName           string    `json:"lastName"`
	Role               Role      `json:"role"`
	EmailNotifications bool      `json:"-"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"-"`
}

func (u User) FullName() string {
	switch {
	case len(u.FirstName) > 0 && len(u.LastName) > 0:
		return u.FirstName + " " + u.LastName
	case len(u.FirstName) > 0:
		return u.FirstName
	default:
		return u.Username
	}
}
