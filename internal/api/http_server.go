package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/application"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/infrastructure/metrics"
)

const maxBodyBytes = 1 << 20

// Services are the application services the HTTP layer calls.
type Services struct {
	Availability *application.AvailabilityService
	Holds        *application.HoldService
	Packages     *application.PackageService
	Catalog      *application.CatalogService
	Sweeper      *application.ExpirySweeper
}

type Server struct {
	svc            Services
	validate       *validator.Validate
	logger         *zap.Logger
	requestTimeout time.Duration
	metrics        *metrics.Metrics
}

type Option func(*Server)

// WithMetrics records request metrics and serves them at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func NewServer(svc Services, requestTimeout time.Duration, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		validate:       newValidator(),
		logger:         logger.Named("http"),
		requestTimeout: requestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with the middleware stack and every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))
	if s.requestTimeout > 0 {
		r.Use(middleware.Timeout(s.requestTimeout))
	}

	// chi requires every middleware before the first route.
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/swagger.json", s.handleSwaggerJson)

	r.Route("/api", func(r chi.Router) {
		r.Post("/availability", s.handleCheckAvailability)

		r.Route("/holds", func(r chi.Router) {
			r.Post("/", s.handleCreateHold)
			r.Post("/package", s.handleReservePackage)
			r.Get("/{id}", s.handleGetHold)
			r.Post("/{id}/extend", s.handleExtendHold)
		})

		r.Route("/sessions/{sessionId}", func(r chi.Router) {
			r.Get("/holds", s.handleListBySession)
			r.Post("/attach", s.handleAttachSession)
			r.Post("/promote", s.handlePromoteSession)
			r.Post("/release", s.handleReleaseSession)
		})

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/holds", s.handleListByOrder)
			r.Post("/promote", s.handlePromoteOrder)
			r.Post("/release", s.handleReleaseOrder)
			r.Post("/complete", s.handleCompleteOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", s.handleSweep)
			r.Put("/products/{productId}", s.handleUpsertProduct)
			r.Put("/packages/{packageId}", s.handleUpsertPackage)
		})
	})
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// GET /swagger.json
func (s *Server) handleSwaggerJson(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(openAPISpec))
}

// POST /api/availability
func (s *Server) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	dates, err := domain.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.Type == targetPackage {
		res, err := s.svc.Packages.CheckPackageAvailability(r.Context(), application.PackageQuery{
			PackageID:        req.ID,
			Persons:          req.Persons,
			Dates:            dates,
			SelectedOptional: req.OptionalProductIDs,
			ExcludeSessionID: req.SessionID,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPackageAvailabilityResponse(res))
		return
	}

	res, err := s.svc.Availability.CheckAvailability(r.Context(), domain.AvailabilityQuery{
		ProductID:        req.ID,
		Dates:            dates,
		Quantity:         req.Quantity,
		ExcludeSessionID: req.SessionID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityResponse(res))
}

// POST /api/holds
func (s *Server) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	var req createHoldRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	dates, err := domain.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	hold, err := s.svc.Holds.CreateSoftHold(r.Context(), req.ProductID, req.SessionID, req.Quantity, dates)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHoldResponse(hold))
}

// POST /api/holds/package
func (s *Server) handleReservePackage(w http.ResponseWriter, r *http.Request) {
	var req reservePackageRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	dates, err := domain.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	holds, err := s.svc.Packages.ReservePackage(r.Context(), application.PackageQuery{
		PackageID:        req.PackageID,
		Persons:          req.Persons,
		Dates:            dates,
		SelectedOptional: req.OptionalProductIDs,
	}, req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHoldsResponse(holds))
}

// GET /api/holds/{id}
func (s *Server) handleGetHold(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	hold, err := s.svc.Holds.GetHold(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldResponse(hold))
}

// POST /api/holds/{id}/extend
func (s *Server) handleExtendHold(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req extendHoldRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	hold, err := s.svc.Holds.ExtendSoftHold(r.Context(), id, req.Minutes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldResponse(hold))
}

// GET /api/sessions/{sessionId}/holds
func (s *Server) handleListBySession(w http.ResponseWriter, r *http.Request) {
	holds, err := s.svc.Holds.ListBySession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldsResponse(holds))
}

// POST /api/sessions/{sessionId}/attach
func (s *Server) handleAttachSession(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	n, err := s.svc.Holds.AttachSessionToOrder(r.Context(), chi.URLParam(r, "sessionId"), req.OrderID)
	s.writeAffected(w, r, n, err)
}

// POST /api/sessions/{sessionId}/promote
func (s *Server) handlePromoteSession(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	n, err := s.svc.Holds.PromoteSessionToOrder(r.Context(), chi.URLParam(r, "sessionId"), req.OrderID)
	s.writeAffected(w, r, n, err)
}

// POST /api/sessions/{sessionId}/release
func (s *Server) handleReleaseSession(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Holds.ReleaseBySession(r.Context(), chi.URLParam(r, "sessionId"))
	s.writeAffected(w, r, n, err)
}

// GET /api/orders/{orderId}/holds
func (s *Server) handleListByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := uuidParam(w, r, "orderId")
	if !ok {
		return
	}
	holds, err := s.svc.Holds.ListByOrder(r.Context(), orderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHoldsResponse(holds))
}

// POST /api/orders/{orderId}/promote
func (s *Server) handlePromoteOrder(w http.ResponseWriter, r *http.Request) {
	if orderID, ok := uuidParam(w, r, "orderId"); ok {
		n, err := s.svc.Holds.PromoteOrder(r.Context(), orderID)
		s.writeAffected(w, r, n, err)
	}
}

// POST /api/orders/{orderId}/release
func (s *Server) handleReleaseOrder(w http.ResponseWriter, r *http.Request) {
	if orderID, ok := uuidParam(w, r, "orderId"); ok {
		n, err := s.svc.Holds.ReleaseByOrder(r.Context(), orderID)
		s.writeAffected(w, r, n, err)
	}
}

// POST /api/orders/{orderId}/complete
func (s *Server) handleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	if orderID, ok := uuidParam(w, r, "orderId"); ok {
		n, err := s.svc.Holds.CompleteByOrder(r.Context(), orderID)
		s.writeAffected(w, r, n, err)
	}
}

// POST /api/admin/sweep
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Sweeper.SweepExpired(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// PUT /api/admin/products/{productId}
func (s *Server) handleUpsertProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := uuidParam(w, r, "productId")
	if !ok {
		return
	}
	var req upsertProductRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	item, err := s.svc.Catalog.UpsertProduct(r.Context(), domain.ProductPayload{
		ProductID:      productID,
		Sku:            req.Sku,
		Name:           req.Name,
		StockQuantity:  req.StockQuantity,
		TurnaroundDays: req.TurnaroundDays,
		IsActive:       req.IsActive,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stockItemResponse{
		ProductID:      item.ProductID,
		Sku:            item.Sku,
		StockTotal:     item.StockTotal,
		TurnaroundDays: item.TurnaroundDays,
		IsActive:       item.IsActive,
	})
}

// PUT /api/admin/packages/{packageId}
func (s *Server) handleUpsertPackage(w http.ResponseWriter, r *http.Request) {
	packageID, ok := uuidParam(w, r, "packageId")
	if !ok {
		return
	}
	var req upsertPackageRequest
	if !s.decode(w, r, &req, false) {
		return
	}
	components := make([]domain.PackageComponentPayload, 0, len(req.Components))
	for _, c := range req.Components {
		components = append(components, domain.PackageComponentPayload{
			ProductID:         c.ProductID,
			QuantityPerPerson: c.QuantityPerPerson,
			Optional:          c.Optional,
		})
	}
	p, err := s.svc.Catalog.UpsertPackage(r.Context(), domain.PackageUpsertedPayload{
		PackageID:  packageID,
		Name:       req.Name,
		IsActive:   req.IsActive,
		Components: components,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageResponse(p))
}

func (s *Server) writeAffected(w http.ResponseWriter, r *http.Request, n int, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, affectedResponse{Affected: n})
}

// decode reads and validates a JSON body. It writes the error response
// itself and returns false when the request must stop.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !(optional && errors.Is(err, io.EOF)) {
		badRequest(w, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeError(w, r, err)
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, name+" is invalid")
		return uuid.Nil, false
	}
	return id, true
}
