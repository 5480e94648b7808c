package enums

// UserRole is the platform-wide role carried in access tokens.
type UserRole string

const (
	UserRoleProducer UserRole = "producer"
	UserRoleAdmin    UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleProducer,
	UserRoleAdmin,
}

func (r UserRole) String() string {
	return string(r)
}

func (r UserRole) IsValid() bool {
	return oneOf(r, validUserRoles)
}

func ParseUserRole(value string) (UserRole, error) {
	return parse("user role", value, validUserRoles)
}
