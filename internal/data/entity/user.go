package entity

type UserRole string

const (
	RoleGuest UserRole = "guest"
	RoleHost  UserRole = "host"
	RoleAdmin UserRole = "admin"
)

type User struct {
	Base
	FullName string   `db:"full_name"`
	Email    string   `db:"email"`
	Phone    *string  `db:"phone"`
	Role     UserRole `db:"role"`
	IsActive bool     `db:"is_active"`
}
