package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/services"
)

func (oc *OrderController) GetOrdersAdmin(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		respondError(c, services.ErrUnauthenticated)
		return
	}

	orders, err := oc.orders.ListAllOrders(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orders)
}

func (oc *OrderController) MarkOrderDelivered(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		respondError(c, services.ErrUnauthenticated)
		return
	}

	order, err := oc.orders.MarkDelivered(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (oc *OrderController) CountTotalOrders(c *gin.Context) {
	n, err := oc.orders.CountTotalOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"totalOrders": n})
}

func (oc *OrderController) TotalSales(c *gin.Context) {
	total, err := oc.orders.SumTotalSales(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"totalSales": total})
}

func (oc *OrderController) TotalSalesByDate(c *gin.Context) {
	sales, err := oc.orders.SumSalesByDate(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sales)
}
