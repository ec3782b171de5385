package middleware

import (
	"net/http"

	"github.com/angelmondragon/brindes-backend/api/responses"
	"github.com/angelmondragon/brindes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/brindes-backend/pkg/errors"
	"github.com/angelmondragon/brindes-backend/pkg/logger"
)

// Capability names a role check so forbidden responses can say which one
// failed.
type Capability struct {
	Name    string
	Allowed func(enums.ActorRole) bool
}

var (
	CapabilityManageCatalog = Capability{Name: "manage_catalog", Allowed: enums.ActorRole.CanManageCatalog}
	CapabilityDeliver       = Capability{Name: "deliver", Allowed: enums.ActorRole.CanDeliver}
)

func RequireCapability(c Capability, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if c.Allowed == nil || !c.Allowed(role) {
				err := pkgerrors.New(pkgerrors.CodeForbidden, "role not allowed for this operation").
					WithDetails(map[string]any{"capability": c.Name, "role": string(role)})
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
