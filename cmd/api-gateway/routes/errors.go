package routes

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/quarry/internal/registry"
	"github.com/lgulliver/quarry/pkg/types"
	"github.com/lgulliver/quarry/pkg/utils"
	"github.com/rs/zerolog/log"
)

// writeError maps a registry error onto its HTTP status. Internal errors are
// logged and reported without detail.
func writeError(c *gin.Context, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, registry.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, registry.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, registry.ErrInvalid):
		status, code = http.StatusBadRequest, "invalid"
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, types.ErrorResponse{
			Error: "internal error",
			Code:  "internal",
		})
		return
	}

	c.AbortWithStatusJSON(status, types.ErrorResponse{Error: err.Error(), Code: code})
}

func writeTooLarge(c *gin.Context, limit int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, types.ErrorResponse{
		Error: fmt.Sprintf("request body exceeds %s", utils.FormatBytes(limit)),
		Code:  "too_large",
	})
}
