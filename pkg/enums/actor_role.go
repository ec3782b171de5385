package enums

import (
	"fmt"
	"strings"
)

// ActorRole is the closed set of roles an authenticated actor may hold.
type ActorRole string

const (
	ActorRoleRequester    ActorRole = "requester"
	ActorRoleManager      ActorRole = "manager"
	ActorRoleDirector     ActorRole = "director"
	ActorRoleCatalogAdmin ActorRole = "catalog_admin"
)

var validActorRoles = []ActorRole{
	ActorRoleRequester,
	ActorRoleManager,
	ActorRoleDirector,
	ActorRoleCatalogAdmin,
}

// legacy role names still issued by the identity provider.
var actorRoleAliases = map[string]ActorRole{
	"solicitante": ActorRoleRequester,
	"gerente":     ActorRoleManager,
	"diretor":     ActorRoleDirector,
	"marketing":   ActorRoleCatalogAdmin,
}

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanApprove reports whether the role may approve or reject at some tier.
func (r ActorRole) CanApprove() bool {
	return r == ActorRoleManager || r == ActorRoleDirector
}

// IsDirector reports whether the role may approve above every threshold.
func (r ActorRole) IsDirector() bool {
	return r == ActorRoleDirector
}

// CanDeliver reports whether the role may register physical deliveries.
func (r ActorRole) CanDeliver() bool {
	return r == ActorRoleCatalogAdmin || r == ActorRoleDirector
}

// CanManageCatalog reports whether the role may move stock in or out.
func (r ActorRole) CanManageCatalog() bool {
	return r == ActorRoleCatalogAdmin || r == ActorRoleDirector
}

// SeesAllRequests reports whether listings are left unscoped for this role.
func (r ActorRole) SeesAllRequests() bool {
	return r == ActorRoleManager || r == ActorRoleDirector || r == ActorRoleCatalogAdmin
}

// ParseActorRole converts raw input into an ActorRole, accepting legacy
// names case-insensitively.
func ParseActorRole(value string) (ActorRole, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validActorRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	if role, ok := actorRoleAliases[normalized]; ok {
		return role, nil
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
