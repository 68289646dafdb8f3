package http

import (
	"errors"
	"net/http"

	"campus-quiz-service/internal/domain"
	"github.com/gin-gonic/gin"
)

const (
	headerUserID   = "X-User-ID"
	headerUserName = "X-User-Name"
	headerUserRole = "X-User-Role"

	identityKey = "identity"
)

// identityFrom reads the caller from the identity provider headers, falling back to
// query parameters for browser WebSocket clients that cannot set headers.
func identityFrom(r *http.Request, allowQuery bool) (domain.Identity, error) {
	id := domain.Identity{
		ID:   r.Header.Get(headerUserID),
		Name: r.Header.Get(headerUserName),
		Role: domain.Role(r.Header.Get(headerUserRole)),
	}
	if allowQuery {
		q := r.URL.Query()
		if id.ID == "" {
			id.ID = q.Get("userId")
		}
		if id.Name == "" {
			id.Name = q.Get("name")
		}
		if id.Role == "" {
			id.Role = domain.Role(q.Get("role"))
		}
	}
	if id.ID == "" {
		return domain.Identity{}, errUnauthenticated
	}
	if id.Role == "" {
		id.Role = domain.RoleStudent
	}
	switch id.Role {
	case domain.RoleStudent, domain.RoleFaculty, domain.RoleAdmin:
	default:
		return domain.Identity{}, &domain.ValidationError{Field: headerUserRole, Reason: "unknown role " + string(id.Role)}
	}
	if id.Name == "" {
		id.Name = id.ID
	}
	return id, nil
}

var errUnauthenticated = errors.New("missing user identity")

func authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := identityFrom(c.Request, false)
		if errors.Is(err, errUnauthenticated) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func requireRoles(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentUser(c).HasPermission(roles...) {
			respondError(c, domain.ErrForbidden)
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.Identity {
	id, _ := c.Get(identityKey)
	user, _ := id.(domain.Identity)
	return user
}
