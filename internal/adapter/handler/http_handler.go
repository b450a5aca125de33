package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/little-lemon/internal/core/domain"
	"github.com/rl1809/little-lemon/internal/core/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	auth   *service.AuthService
	menu   *service.MenuService
	cart   *service.CartService
	orders *service.OrderService
	groups *service.GroupService
	store  Pinger
	log    *zap.Logger
}

type Services struct {
	Auth   *service.AuthService
	Menu   *service.MenuService
	Cart   *service.CartService
	Orders *service.OrderService
	Groups *service.GroupService
}

func NewHTTPHandler(svc Services, store Pinger, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		auth:   svc.Auth,
		menu:   svc.Menu,
		cart:   svc.Cart,
		orders: svc.Orders,
		groups: svc.Groups,
		store:  store,
		log:    log,
	}
}

// Routes builds the router. Paths match with or without a trailing slash.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Route("/menu-items", func(r chi.Router) {
			r.Get("/", h.ListMenuItems)
			r.Post("/", h.CreateMenuItem)
			r.Get("/{id}", h.GetMenuItem)
			r.Put("/{id}", h.UpdateMenuItem)
			r.Patch("/{id}", h.PatchMenuItem)
			r.Delete("/{id}", h.DeleteMenuItem)
		})

		r.Route("/cart/menu-items", func(r chi.Router) {
			r.Get("/", h.ListCart)
			r.Post("/", h.AddToCart)
			r.Delete("/", h.ClearCart)
			r.Delete("/delete", h.ClearCart)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/", h.PlaceOrder)
			r.Get("/{id}", h.GetOrder)
			r.Put("/{id}", h.UpdateOrder)
			r.Patch("/{id}", h.UpdateOrder)
			r.Delete("/{id}", h.DeleteOrder)
		})

		r.Route("/groups/manager/users", h.groupRoutes(domain.GroupManager))
		r.Route("/groups/delivery-crew/users", h.groupRoutes(domain.GroupDeliveryCrew))
	})

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the status mapped from err. Unmapped errors are
// logged and reported without detail.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		message = "internal error"
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Token")
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrValidation)
	}
	return nil
}

// pathID reads the numeric {id} parameter. Anything else names no resource.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", domain.ErrNotFound, raw)
	}
	return id, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrValidation, key)
	}
	return n, nil
}

// pageFrom reads the page and perpage query parameters.
func pageFrom(r *http.Request) (domain.Page, error) {
	number, err := queryInt(r, "page")
	if err != nil {
		return domain.Page{}, err
	}
	size, err := queryInt(r, "perpage")
	if err != nil {
		return domain.Page{}, err
	}
	return domain.Page{Number: number, Size: size}.Normalize(), nil
}
