// Package identity adapts the upstream authentication layer. The actor id
// arrives in a header set by a trusted proxy and is treated as opaque.
package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultHeader carries the authenticated actor id.
const DefaultHeader = "X-User-ID"

const actorKey = "identity.actor"

// FromRequest returns the actor id carried by r, if any.
func FromRequest(r *http.Request, header string) (string, bool) {
	if header == "" {
		header = DefaultHeader
	}
	actor := strings.TrimSpace(r.Header.Get(header))
	return actor, actor != ""
}

// Middleware stores the actor id, when present, in the gin context.
func Middleware(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor, ok := FromRequest(c.Request, header); ok {
			c.Set(actorKey, actor)
		}
		c.Next()
	}
}

// ActorFromContext returns the actor id stored by Middleware.
func ActorFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return "", false
	}
	actor, ok := v.(string)
	return actor, ok && actor != ""
}
