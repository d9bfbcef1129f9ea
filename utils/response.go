package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/betareaderbr/betareader/models"
)

// JSONResponse is the envelope written by every handler and decoded by the gateway client.
type JSONResponse = models.Envelope[any]

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, models.CodeOK, models.MessageOK, data)
}

// Error returns a standard error response. A status that disagrees with the
// business code is logged so the two stay aligned.
func Error(ctx *gin.Context, status int, code int, message string) {
	if s := models.StatusOf(code); s != 0 && s != status {
		Sugar.Warnf("error code %d sent with status %d on %s", code, status, ctx.FullPath())
	}
	Respond(ctx, status, code, message, nil)
}
