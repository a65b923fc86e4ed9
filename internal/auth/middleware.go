package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
)

const actorKey = "actor"

// RequireActor enforces bearer JWT tokens signed with HS256 whose role is
// one of roles. With no roles listed any faculty or admin token passes.
func RequireActor(signingKey, issuer string, roles ...attendance.Role) gin.HandlerFunc {
	if len(roles) == 0 {
		roles = []attendance.Role{attendance.RoleFaculty, attendance.RoleAdmin}
	}
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		actor := claims.Actor()
		if !hasRole(roles, actor.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not allowed"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the actor stored by RequireActor.
func ActorFrom(c *gin.Context) (attendance.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return attendance.Actor{}, false
	}
	actor, ok := v.(attendance.Actor)
	return actor, ok
}

func hasRole(roles []attendance.Role, r attendance.Role) bool {
	for _, allowed := range roles {
		if allowed == r {
			return true
		}
	}
	return false
}
