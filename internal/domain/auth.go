package domain

// OperatorRole enumerates dashboard operator roles carried in bearer tokens.
type OperatorRole string

const (
	OperatorRoleAdmin      OperatorRole = "ADMIN"
	OperatorRoleDepartment OperatorRole = "DEPARTMENT"
)

// Valid reports whether r is a known role.
func (r OperatorRole) Valid() bool {
	return r == OperatorRoleAdmin || r == OperatorRoleDepartment
}
