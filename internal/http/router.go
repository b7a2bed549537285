package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Carts          CartService
	Checkout       CheckoutService
	Log            *zap.Logger
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	carts := NewCartHandler(cfg.Carts, cfg.Log)
	checkouts := NewCheckoutHandler(cfg.Checkout, cfg.Log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(BodyLimit(cfg.MaxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(IdentityMiddleware)

		r.Route("/cart", func(r chi.Router) {
			r.With(NoStore).Get("/count/{userEmail}", carts.GetCartCount)
			r.With(NoStore).Get("/{userEmail}", carts.GetCart)
			r.Post("/add", carts.AddItem)
			r.Put("/update", carts.UpdateItem)
			r.Delete("/remove", carts.RemoveItem)
			r.Delete("/clear/{userEmail}", carts.ClearCart)
		})

		r.Post("/create-payment-intent", checkouts.CreatePaymentIntent)
		r.Post("/create-multi-event-payment-intent", checkouts.CreateMultiEventPaymentIntent)
		r.Post("/save-booking", checkouts.SaveBooking)
		r.Post("/save-multi-event-booking", checkouts.SaveMultiEventBooking)
		r.With(NoStore).Get("/bookings/{userEmail}", checkouts.ListBookings)
	})

	return otelhttp.NewHandler(r, "ticketing-api")
}
