package main

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hubfabric/hubd/internal/correlator"
	"github.com/hubfabric/hubd/internal/decoder"
	"github.com/hubfabric/hubd/internal/huberrors"
	"github.com/hubfabric/hubd/internal/resolver"
)

// invokeRequest is the admin-facing HTTP shape of a server-initiated
// Invoke call, letting an operator or an external collaborator service
// drive the correlator without embedding hubd as a Go library.
type invokeRequest struct {
	Target struct {
		Kind          string   `json:"kind"` // All | User | Users | Connection | Connections
		UserID        string   `json:"userId,omitempty"`
		UserIDs       []string `json:"userIds,omitempty"`
		ConnectionID  string   `json:"connectionId,omitempty"`
		ConnectionIDs []string `json:"connectionIds,omitempty"`
	} `json:"target"`
	Method string          `json:"method"`
	Param  json.RawMessage `json:"param,omitempty"`
}

func (r invokeRequest) toTarget() (resolver.Target, error) {
	switch r.Target.Kind {
	case "All":
		return resolver.All(), nil
	case "User":
		return resolver.User(r.Target.UserID), nil
	case "Users":
		return resolver.Users(r.Target.UserIDs), nil
	case "Connection":
		return resolver.Connection(r.Target.ConnectionID), nil
	case "Connections":
		return resolver.Connections(r.Target.ConnectionIDs), nil
	default:
		return resolver.Target{}, huberrors.ClientError("unrecognized target kind: " + r.Target.Kind)
	}
}

// registerInvokeRoute wires POST /invoke, the external HTTP seam onto
// the request correlator (component E) for callers outside the Go
// process.
func registerInvokeRoute(group *gin.RouterGroup, corr *correlator.Correlator, dec *decoder.Decoder) {
	group.POST("/invoke", func(c *gin.Context) {
		var req invokeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			huberrors.AbortWithError(c, huberrors.ClientError("malformed invoke request: "+err.Error()))
			return
		}
		target, err := req.toTarget()
		if err != nil {
			huberrors.HandleError(c, err)
			return
		}

		var param any
		if len(req.Param) > 0 {
			param = req.Param
		}

		resp, err := corr.Invoke(c.Request.Context(), target, req.Method, param)
		if err != nil {
			huberrors.HandleError(c, err)
			return
		}

		var result json.RawMessage
		if err := dec.Decode(c.Request.Context(), resp, &result); err != nil {
			huberrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": result})
	})
}
