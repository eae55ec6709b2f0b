package model

import (
	"time"

	"github.com/google/uuid"
)

// Roles, in ascending privilege order.
const (
	RoleCashier = "cashier"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// User statuses. Users are soft-deleted only; admin listings always include
// deleted rows.
const (
	UserActive   = "active"
	UserInactive = "inactive"
	UserDeleted  = "deleted"
)

// User stores system users with role-based access.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         string    `gorm:"type:varchar(20);not null"`
	Status       string    `gorm:"type:varchar(20);not null;default:'active'"`
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Customer is a directory entry referenced by invoices. Soft-deleted via
// Active so historical invoices keep their linkage.
type Customer struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string    `gorm:"index;not null"`
	Email     *string
	Phone     *string
	Address   *string
	Active    bool  `gorm:"not null;default:true"`
	Revision  int64 `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
