package model

import "time"

// Role is the actor's position in the temple administration.
type Role string

const (
	RoleAdmin                Role = "admin"
	RoleManager              Role = "manager"
	RolePriest               Role = "priest"
	RoleStoreKeeper          Role = "store_keeper"
	RoleVolunteerCoordinator Role = "volunteer_coordinator"
	RoleVolunteer            Role = "volunteer"
	RoleFreelancer           Role = "freelancer"
	RoleAccountant           Role = "accountant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RolePriest, RoleStoreKeeper,
		RoleVolunteerCoordinator, RoleVolunteer, RoleFreelancer, RoleAccountant:
		return true
	}
	return false
}

// SystemActorID marks writes made by the scheduler rather than a person.
const SystemActorID = "system"

type Actor struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Role      Role   `gorm:"not null;index"`
	CreatedAt time.Time
}
