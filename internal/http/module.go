package http

import "github.com/gin-gonic/gin"

// Module is an HTTP-facing part of a service. The router mounts every module
// of App in order.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext carries the route groups a module may mount on. Protected
// requires a valid access token; the handler reads the actor from it.
type RouterContext struct {
	V1        *gin.RouterGroup
	Protected *gin.RouterGroup
}
