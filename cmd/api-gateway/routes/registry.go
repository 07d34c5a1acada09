package routes

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Masterminds/semver/v3"
	"github.com/gin-gonic/gin"
	"github.com/lgulliver/quarry/cmd/api-gateway/middleware"
	"github.com/lgulliver/quarry/internal/registry"
	"github.com/lgulliver/quarry/pkg/utils"
)

// RegistryRoutes sets up the package routes. maxUploadSize bounds publish
// bodies; 0 means unbounded.
func RegistryRoutes(r gin.IRouter, registryService RegistryServiceInterface, maxUploadSize int64) {
	r.GET("/", listPackages(registryService))
	r.GET("/:id", resolvePackage(registryService))
	r.GET("/:id/:version", downloadPackage(registryService))
	r.POST("/:id/:version", middleware.TokenMiddleware(), publishPackage(registryService, maxUploadSize))
	r.DELETE("/:id/:version", middleware.TokenMiddleware(), deletePackage(registryService))
}

// pathVersion parses the :version segment. A string that is not a version
// cannot name a stored package, so it is reported as not found.
func pathVersion(c *gin.Context) (*semver.Version, error) {
	raw := c.Param("version")
	v, err := utils.ParseVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", registry.ErrNotFound, c.Param("id"), raw)
	}
	return v, nil
}

func listPackages(registryService RegistryServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := registryService.ListIDs(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ids)
	}
}

func resolvePackage(registryService RegistryServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		req, err := utils.ParseRequirement(c.Query("req"))
		if err != nil {
			writeError(c, fmt.Errorf("%w: %w", registry.ErrInvalid, err))
			return
		}

		limit := 1
		if raw, ok := c.GetQuery("limit"); ok {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 0 {
				writeError(c, fmt.Errorf("%w: limit must be a non-negative integer", registry.ErrInvalid))
				return
			}
		}

		matches, err := registryService.Resolve(c.Request.Context(), id, req, limit)
		if err != nil {
			writeError(c, err)
			return
		}

		if limit == 1 {
			if len(matches) == 0 {
				writeError(c, fmt.Errorf("%w: no version of %s matches", registry.ErrNotFound, id))
				return
			}
			c.JSON(http.StatusOK, matches[0])
			return
		}
		c.JSON(http.StatusOK, matches)
	}
}

func downloadPackage(registryService RegistryServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := pathVersion(c)
		if err != nil {
			writeError(c, err)
			return
		}

		data, err := registryService.Download(c.Request.Context(), c.Param("id"), version)
		if err != nil {
			writeError(c, err)
			return
		}

		c.Data(http.StatusOK, "application/octet-stream", data)
	}
}

func publishPackage(registryService RegistryServiceInterface, maxUploadSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := pathVersion(c)
		if err != nil {
			writeError(c, err)
			return
		}

		// reject before buffering up to maxUploadSize of body
		token := middleware.GetTokenFromContext(c)
		ok, err := registryService.AuthorizePublisher(c.Request.Context(), token)
		if err != nil {
			writeError(c, fmt.Errorf("%w: %w", registry.ErrInternal, err))
			return
		}
		if !ok {
			writeError(c, registry.ErrUnauthorized)
			return
		}

		body := c.Request.Body
		if maxUploadSize > 0 {
			body = http.MaxBytesReader(c.Writer, body, maxUploadSize)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeTooLarge(c, tooLarge.Limit)
				return
			}
			writeError(c, fmt.Errorf("failed to read request body: %w", err))
			return
		}

		mv, err := registryService.Publish(c.Request.Context(), c.Param("id"), version, data, token)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, mv)
	}
}

func deletePackage(registryService RegistryServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		version, err := pathVersion(c)
		if err != nil {
			writeError(c, err)
			return
		}

		if err := registryService.Delete(c.Request.Context(), c.Param("id"), version, middleware.GetTokenFromContext(c)); err != nil {
			writeError(c, err)
			return
		}

		c.Status(http.StatusOK)
	}
}
