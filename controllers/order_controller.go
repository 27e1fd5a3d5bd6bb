package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"storefront/models"
	"storefront/services"
)

type OrderController struct {
	orders *services.OrderService
}

func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{orders: orders}
}

type orderItemRequest struct {
	Product string  `json:"product"`
	ID      string  `json:"_id"`
	Qty     int     `json:"qty"`
	Price   float64 `json:"price"`
}

type createOrderRequest struct {
	OrderItems      []orderItemRequest     `json:"orderItems"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod" binding:"required"`
}

func (oc *OrderController) CreateOrder(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		respondError(c, services.ErrUnauthenticated)
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(req.OrderItems) == 0 {
			respondError(c, services.ErrEmptyCart)
			return
		}
		respondError(c, badRequest(services.CodeInvalidOrderItem, "Invalid order payload"))
		return
	}

	lines := make([]services.CartLine, 0, len(req.OrderItems))
	for _, item := range req.OrderItems {
		ref := item.Product
		if ref == "" {
			ref = item.ID
		}
		lines = append(lines, services.CartLine{ProductID: ref, Quantity: item.Qty, Price: item.Price})
	}

	order, err := oc.orders.CreateOrder(c.Request.Context(), id, services.CreateOrderInput{
		Items:           lines,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (oc *OrderController) GetMyOrders(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		respondError(c, services.ErrUnauthenticated)
		return
	}

	orders, err := oc.orders.ListOrdersForUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orders)
}

func (oc *OrderController) GetOrderByID(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		respondError(c, services.ErrUnauthenticated)
		return
	}

	order, err := oc.orders.FindOrderByID(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

type payRequest struct {
	Source     string `json:"source"`
	ID         string `json:"id"`
	Status     string `json:"status"`
	UpdateTime string `json:"update_time"`
	Payer      struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
}

// confirmation picks the payment variant from the explicit source field.
func (r payRequest) confirmation() (services.PaymentConfirmation, error) {
	switch r.Source {
	case "stripe", "gateway":
		return services.GatewaySession{SessionID: r.ID}, nil
	case "", "paypal", "raw":
		return services.RawPayment{
			ID:         r.ID,
			Status:     r.Status,
			UpdateTime: r.UpdateTime,
			PayerEmail: r.Payer.EmailAddress,
		}, nil
	default:
		return nil, badRequest(services.CodeInvalidPaymentPayload, "Unsupported payment source: "+r.Source)
	}
}

func (oc *OrderController) PayOrder(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		respondError(c, services.ErrUnauthenticated)
		return
	}

	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest(services.CodeInvalidPaymentPayload, "Invalid payment payload"))
		return
	}

	confirmation, err := req.confirmation()
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := oc.orders.ConfirmPayment(c.Request.Context(), id, c.Param("id"), confirmation)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

type checkoutRequest struct {
	CartItems []struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
		Qty   int     `json:"qty"`
	} `json:"cartItems"`
}

func (oc *OrderController) CreateCheckoutSession(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		respondError(c, services.ErrUnauthenticated)
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest(services.CodeInvalidCartItems, "Invalid cart items"))
		return
	}

	items := make([]services.CheckoutItem, 0, len(req.CartItems))
	for _, item := range req.CartItems {
		items = append(items, services.CheckoutItem{Name: item.Name, Price: item.Price, Quantity: item.Qty})
	}

	session, err := oc.orders.CreateCheckoutSession(c.Request.Context(), id, c.Param("id"), items)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": session.RedirectURL, "sessionId": session.ID})
}
