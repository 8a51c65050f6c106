package global

import "strings"

// Connected endpoints are named by a role-prefixed identity key:
// "user_<id>" or "seller_<id>". The key doubles as the connection-registry
// lookup key; presence and unseen-counter keys are derived from its parts.
const (
	RoleUser   = "user"
	RoleSeller = "seller"
)

// IdentityKey builds "user_<id>" / "seller_<id>".
func IdentityKey(role, id string) string {
	return role + "_" + id
}

// ParseIdentityKey splits an identity key at the first underscore and
// validates the role prefix. Entity ids may themselves contain underscores.
func ParseIdentityKey(key string) (role, id string, ok bool) {
	i := strings.Index(key, "_")
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	role, id = key[:i], key[i+1:]
	if role != RoleUser && role != RoleSeller {
		return "", "", false
	}
	return role, id, true
}

// OppositeRole maps user<->seller. Unknown roles map to "".
func OppositeRole(role string) string {
	switch role {
	case RoleUser:
		return RoleSeller
	case RoleSeller:
		return RoleUser
	}
	return ""
}

func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleSeller
}
