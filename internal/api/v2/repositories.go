// internal/api/v2/repositories.go
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
)

// RepositoryInfo describes one registered repository adapter.
type RepositoryInfo struct {
	Name      string `json:"name"`
	HasSchema bool   `json:"has_schema"`
}

// initRepositoryRoutes registers the repository discovery endpoints
func (c *Controller) initRepositoryRoutes() {
	c.Group.GET("/repositories", c.ListRepositories)
	c.Group.GET("/repositories/:name/schema", c.GetRepositorySchema)
}

// ListRepositories handles GET /api/v2/repositories
// Returns the adapters available for publication.
func (c *Controller) ListRepositories(ctx echo.Context) error {
	names := c.Registry.Names()
	infos := make([]RepositoryInfo, 0, len(names))
	for _, name := range names {
		_, err := c.Registry.Schema(name)
		infos = append(infos, RepositoryInfo{Name: name, HasSchema: err == nil})
	}
	return ctx.JSON(http.StatusOK, infos)
}

// GetRepositorySchema handles GET /api/v2/repositories/:name/schema
// Returns the metadata schema a repository expects for depositions.
func (c *Controller) GetRepositorySchema(ctx echo.Context) error {
	name := ctx.Param("name")
	if name == "" {
		return c.HandleError(ctx, nil, "Missing repository name", http.StatusBadRequest)
	}

	cacheKey := "schema:" + name
	if cached, found := c.schemaCache.Get(cacheKey); found {
		return ctx.JSON(http.StatusOK, cached)
	}

	schema, err := c.Registry.Schema(name)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to retrieve repository schema", statusForError(err))
	}

	c.schemaCache.Set(cacheKey, schema, cache.DefaultExpiration)

	return ctx.JSON(http.StatusOK, schema)
}
