package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/models"
)

type ProductCatalog interface {
	List(ctx context.Context) ([]models.Product, error)
}

type ProductController struct {
	products ProductCatalog
}

func NewProductController(products ProductCatalog) *ProductController {
	return &ProductController{products: products}
}

func (pc *ProductController) GetProductsPublic(c *gin.Context) {
	products, err := pc.products.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, products)
}
