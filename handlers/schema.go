package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SchemaHandler dumps the analytical store's table catalog
// @Summary      Get the dataset schema
// @Description  Returns the tables and columns available to data questions
// @Tags         Schema
// @Produce      json
// @Success      200  {array}   models.TableSchema  "Table catalog"
// @Failure      500  {object}  map[string]string   "Catalog unavailable"
// @Router       /api/schema [get]
func (h *Handlers) SchemaHandler(c *gin.Context) {
	catalog, err := h.store.Schema(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load schema"})
		return
	}
	c.JSON(http.StatusOK, catalog)
}
