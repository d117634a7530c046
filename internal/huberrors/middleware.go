package huberrors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hubfabric/hubd/internal/logger"
)

// ErrorHandler is gin middleware that renders the last request error as JSON.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()

		if hubErr, ok := err.Err.(*HubError); ok {
			log := logger.HTTP()
			if hubErr.StatusCode >= 500 {
				log.Error().Str("code", hubErr.Code).Str("details", hubErr.Details).Msg(hubErr.Message)
			} else {
				log.Warn().Str("code", hubErr.Code).Msg(hubErr.Message)
			}
			c.JSON(hubErr.StatusCode, hubErr.ToResponse())
			return
		}

		logger.HTTP().Error().Err(err.Err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "INTERNAL_SERVER_ERROR",
			Message: "an unexpected error occurred",
			Code:    "INTERNAL_SERVER_ERROR",
		})
	}
}

// Recovery is gin middleware that recovers from panics in handlers.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.HTTP().Error().Interface("panic", r).Msg("recovered from panic")
				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:   "INTERNAL_SERVER_ERROR",
					Message: "an unexpected error occurred",
					Code:    "INTERNAL_SERVER_ERROR",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// HandleError reports err on the gin context and writes its JSON response.
func HandleError(c *gin.Context, err error) {
	if hubErr, ok := err.(*HubError); ok {
		c.Error(hubErr)
		c.JSON(hubErr.StatusCode, hubErr.ToResponse())
		return
	}
	internalErr := New(CodeStoreFailure, err.Error())
	c.Error(internalErr)
	c.JSON(internalErr.StatusCode, internalErr.ToResponse())
}

// AbortWithError aborts the request with err's JSON response.
func AbortWithError(c *gin.Context, err *HubError) {
	c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}
