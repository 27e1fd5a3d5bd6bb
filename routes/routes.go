package routes

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront/controllers"
	"storefront/middleware"
)

type Handlers struct {
	Orders    *controllers.OrderController
	Products  *controllers.ProductController
	Auth      *controllers.AuthController
	JWTSecret []byte
	Blacklist middleware.Blacklist
	Gatherer  prometheus.Gatherer
}

// NewRouter builds the engine with the request-scoped middleware chain.
func NewRouter(h Handlers, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.SetTrustedProxies(nil)
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(log),
		middleware.Metrics(),
	)
	RegisterRoutes(r, h)
	return r
}

func RegisterRoutes(r *gin.Engine, h Handlers) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if h.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}

	auth := middleware.AuthMiddleware(h.JWTSecret, h.Blacklist)
	admin := middleware.AdminMiddleware()

	api := r.Group("/api")
	{
		users := api.Group("/users")
		{
			users.POST("/register", h.Auth.Register)
			users.POST("/login", h.Auth.Login)
			users.POST("/logout", h.Auth.Logout)
		}

		api.GET("/products", h.Products.GetProductsPublic)

		orders := api.Group("/orders")
		{
			orders.POST("", auth, h.Orders.CreateOrder)
			orders.GET("", auth, admin, h.Orders.GetOrdersAdmin)
			orders.GET("/mine", auth, h.Orders.GetMyOrders)

			orders.GET("/total-orders", h.Orders.CountTotalOrders)
			orders.GET("/total-sales", h.Orders.TotalSales)
			orders.GET("/total-sales-by-date", h.Orders.TotalSalesByDate)

			orders.GET("/:id", auth, h.Orders.GetOrderByID)
			orders.PUT("/:id/pay", auth, h.Orders.PayOrder)
			orders.PUT("/:id/deliver", auth, admin, h.Orders.MarkOrderDelivered)

			orders.POST("/:id/checkout-session", auth, h.Orders.CreateCheckoutSession)
			orders.POST("/:id/create-checkout-session", auth, h.Orders.CreateCheckoutSession)
			orders.POST("/:id/stripe-checkout", auth, h.Orders.CreateCheckoutSession)
		}
	}
}
