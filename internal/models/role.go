package models

import "strings"

// Role — роль пользователя в маркетплейсе.
type Role string

const (
	// RoleUser — роль по умолчанию для регистрации по e-mail.
	RoleUser Role = "user"
	// RoleWorker — исполнитель; роль по умолчанию при первом входе по номеру телефона.
	RoleWorker Role = "worker"
	// RoleCustomer — заказчик.
	RoleCustomer Role = "customer"
	// RoleAdmin — администратор.
	RoleAdmin Role = "admin"
)

// ParseRole нормализует строку и проверяет, что роль входит в перечисление.
// Пустая строка не является ролью.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleUser, RoleWorker, RoleCustomer, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

func (r Role) String() string { return string(r) }
