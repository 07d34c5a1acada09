package routes

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/quarry/cmd/api-gateway/middleware"
	"github.com/lgulliver/quarry/pkg/types"
)

// maxKeyBody bounds credential request bodies
const maxKeyBody = 64 << 10

// AdminRoutes sets up the credential and maintenance routes. Every route
// requires an admin token.
func AdminRoutes(r gin.IRouter, registryService RegistryServiceInterface) {
	requireAdmin := middleware.RequireAdmin(registryService)

	r.POST("/publish_key", requireAdmin, addPublishKey(registryService))
	r.POST("/delete_key", requireAdmin, deletePublishKey(registryService))
	r.POST("/reconcile", requireAdmin, reconcile(registryService))
}

// decodeBody decodes a JSON body. A body that cannot be decoded is reported
// as an internal error, not a bad request.
func decodeBody(c *gin.Context, dst any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxKeyBody)
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	return nil
}

func addPublishKey(registryService RegistryServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.PublishKeyRequest
		if err := decodeBody(c, &req); err != nil {
			writeError(c, err)
			return
		}

		token, err := registryService.AddCredential(c.Request.Context(), middleware.GetTokenFromContext(c), req.User, req.Pw)
		if err != nil {
			writeError(c, err)
			return
		}

		// a generated token is only ever shown once
		if req.Pw == "" {
			c.JSON(http.StatusCreated, types.PublishKeyRequest{User: req.User, Pw: token})
			return
		}
		c.Status(http.StatusCreated)
	}
}

func deletePublishKey(registryService RegistryServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.DeleteKeyRequest
		if err := decodeBody(c, &req); err != nil {
			writeError(c, err)
			return
		}

		if err := registryService.RemoveCredential(c.Request.Context(), middleware.GetTokenFromContext(c), req.Pw, req.User); err != nil {
			writeError(c, err)
			return
		}

		c.Status(http.StatusOK)
	}
}

func reconcile(registryService RegistryServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := registryService.Reconcile(c.Request.Context(), middleware.GetTokenFromContext(c))
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}
