package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Actor returns the id of the authenticated caller. It is the value stamped
// on audit fields such as confirmedBy and cancelledBy.
func Actor(c *gin.Context) (string, bool) {
	raw, ok := c.Get(ContextUserIDKey)
	if !ok {
		return "", false
	}
	userID, ok := raw.(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return "", false
	}
	return userID.String(), true
}

// MustActor is Actor for protected routes: without a caller it aborts with 401.
func MustActor(c *gin.Context) (string, bool) {
	actor, ok := Actor(c)
	if !ok {
		abortUnauthorized(c, "unauthorized")
	}
	return actor, ok
}

// ParamUUID parses the named path parameter, answering 400 when it is not a UUID.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}
