package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/application"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

const (
	targetProduct = "product"
	targetPackage = "package"
)

type healthResponse struct {
	Status string `json:"status"`
}

type availabilityRequest struct {
	Type               string      `json:"type" validate:"required,oneof=product package"`
	ID                 uuid.UUID   `json:"id" validate:"required"`
	Quantity           int         `json:"quantity" validate:"required_if=Type product,gte=0"`
	Persons            int         `json:"persons" validate:"required_if=Type package,gte=0"`
	StartDate          string      `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate            string      `json:"endDate" validate:"required,datetime=2006-01-02"`
	SessionID          string      `json:"sessionId"`
	OptionalProductIDs []uuid.UUID `json:"optionalProductIds"`
}

type availabilityResponse struct {
	Type              string    `json:"type"`
	ID                uuid.UUID `json:"id"`
	Available         bool      `json:"available"`
	AvailableQuantity int       `json:"availableQuantity"`
	RequestedQuantity int       `json:"requestedQuantity"`
	StockTotal        int       `json:"stockTotal"`
	ReservedQuantity  int       `json:"reservedQuantity"`
	Reason            string    `json:"reason,omitempty"`
}

type componentAvailability struct {
	ProductID         uuid.UUID `json:"productId"`
	Available         bool      `json:"available"`
	AvailableQuantity int       `json:"availableQuantity"`
	RequestedQuantity int       `json:"requestedQuantity"`
	Reason            string    `json:"reason,omitempty"`
}

type packageAvailabilityResponse struct {
	Type       string                  `json:"type"`
	ID         uuid.UUID               `json:"id"`
	Persons    int                     `json:"persons"`
	Available  bool                    `json:"available"`
	Reason     string                  `json:"reason,omitempty"`
	Components []componentAvailability `json:"components"`
	Shortfall  *componentAvailability  `json:"shortfall,omitempty"`
}

type createHoldRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	SessionID string    `json:"sessionId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
	StartDate string    `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string    `json:"endDate" validate:"required,datetime=2006-01-02"`
}

type reservePackageRequest struct {
	PackageID          uuid.UUID   `json:"packageId" validate:"required"`
	SessionID          string      `json:"sessionId" validate:"required"`
	Persons            int         `json:"persons" validate:"gt=0"`
	StartDate          string      `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate            string      `json:"endDate" validate:"required,datetime=2006-01-02"`
	OptionalProductIDs []uuid.UUID `json:"optionalProductIds"`
}

type extendHoldRequest struct {
	Minutes int `json:"minutes" validate:"gte=0"`
}

type orderRequest struct {
	OrderID uuid.UUID `json:"orderId" validate:"required"`
}

type upsertProductRequest struct {
	Sku            string `json:"sku"`
	Name           string `json:"name"`
	StockQuantity  int    `json:"stockQuantity" validate:"gte=0"`
	TurnaroundDays int    `json:"turnaroundDays" validate:"gte=0"`
	IsActive       bool   `json:"isActive"`
}

type packageComponentRequest struct {
	ProductID         uuid.UUID `json:"productId" validate:"required"`
	QuantityPerPerson int       `json:"quantityPerPerson" validate:"gt=0"`
	Optional          bool      `json:"optional"`
}

type upsertPackageRequest struct {
	Name       string                    `json:"name"`
	IsActive   bool                      `json:"isActive"`
	Components []packageComponentRequest `json:"components" validate:"dive"`
}

type holdResponse struct {
	ID             uuid.UUID  `json:"id"`
	ProductID      uuid.UUID  `json:"productId"`
	PackageID      *uuid.UUID `json:"packageId,omitempty"`
	SessionID      string     `json:"sessionId,omitempty"`
	OrderID        *uuid.UUID `json:"orderId,omitempty"`
	Quantity       int        `json:"quantity"`
	StartDate      string     `json:"startDate"`
	EndDate        string     `json:"endDate"`
	State          string     `json:"state"`
	HoldType       string     `json:"holdType"`
	Status         string     `json:"status"`
	ExpiresAtUtc   *string    `json:"expiresAtUtc,omitempty"`
	CreatedAtUtc   string     `json:"createdAtUtc"`
	ReleasedAtUtc  *string    `json:"releasedAtUtc,omitempty"`
	CompletedAtUtc *string    `json:"completedAtUtc,omitempty"`
}

type holdsResponse struct {
	Holds []holdResponse `json:"holds"`
}

type affectedResponse struct {
	Affected int `json:"affected"`
}

type stockItemResponse struct {
	ProductID      uuid.UUID `json:"productId"`
	Sku            string    `json:"sku"`
	StockTotal     int       `json:"stockTotal"`
	TurnaroundDays int       `json:"turnaroundDays"`
	IsActive       bool      `json:"isActive"`
}

type packageResponse struct {
	ID         uuid.UUID                 `json:"id"`
	Name       string                    `json:"name"`
	IsActive   bool                      `json:"isActive"`
	Components []packageComponentRequest `json:"components"`
}

const timestampLayout = "2006-01-02T15:04:05Z"

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timestampLayout)
	return &s
}

func toHoldResponse(r *domain.Reservation) holdResponse {
	resp := holdResponse{
		ID:             r.ID,
		ProductID:      r.ProductID,
		SessionID:      r.SessionID,
		Quantity:       r.Quantity,
		StartDate:      r.Dates.Start.Format(domain.DateLayout),
		EndDate:        r.Dates.End.Format(domain.DateLayout),
		State:          string(r.State),
		HoldType:       string(r.State.Type()),
		Status:         string(r.State.Status()),
		ExpiresAtUtc:   formatTime(r.ExpiresAtUtc),
		CreatedAtUtc:   r.CreatedAtUtc.UTC().Format(timestampLayout),
		ReleasedAtUtc:  formatTime(r.ReleasedAtUtc),
		CompletedAtUtc: formatTime(r.CompletedAtUtc),
	}
	if r.OrderID != uuid.Nil {
		orderID := r.OrderID
		resp.OrderID = &orderID
	}
	if r.PackageID != uuid.Nil {
		packageID := r.PackageID
		resp.PackageID = &packageID
	}
	return resp
}

func toHoldsResponse(holds []*domain.Reservation) holdsResponse {
	resp := holdsResponse{Holds: make([]holdResponse, 0, len(holds))}
	for _, h := range holds {
		resp.Holds = append(resp.Holds, toHoldResponse(h))
	}
	return resp
}

func toAvailabilityResponse(r domain.AvailabilityResult) availabilityResponse {
	return availabilityResponse{
		Type:              targetProduct,
		ID:                r.ProductID,
		Available:         r.Available,
		AvailableQuantity: r.AvailableQuantity,
		RequestedQuantity: r.RequestedQuantity,
		StockTotal:        r.StockTotal,
		ReservedQuantity:  r.ReservedQuantity,
		Reason:            r.Reason,
	}
}

func toComponent(r domain.AvailabilityResult) componentAvailability {
	return componentAvailability{
		ProductID:         r.ProductID,
		Available:         r.Available,
		AvailableQuantity: r.AvailableQuantity,
		RequestedQuantity: r.RequestedQuantity,
		Reason:            r.Reason,
	}
}

func toPackageAvailabilityResponse(p application.PackageAvailability) packageAvailabilityResponse {
	resp := packageAvailabilityResponse{
		Type:       targetPackage,
		ID:         p.PackageID,
		Persons:    p.Persons,
		Available:  p.Available,
		Reason:     p.Reason,
		Components: make([]componentAvailability, 0, len(p.Components)),
	}
	for _, c := range p.Components {
		resp.Components = append(resp.Components, toComponent(c))
	}
	if p.Shortfall != nil {
		s := toComponent(*p.Shortfall)
		resp.Shortfall = &s
	}
	return resp
}

func toPackageResponse(p *domain.Package) packageResponse {
	resp := packageResponse{
		ID:         p.ID,
		Name:       p.Name,
		IsActive:   p.IsActive,
		Components: make([]packageComponentRequest, 0, len(p.Components)),
	}
	for _, c := range p.Components {
		resp.Components = append(resp.Components, packageComponentRequest{
			ProductID:         c.ProductID,
			QuantityPerPerson: c.QuantityPerPerson,
			Optional:          c.Optional,
		})
	}
	return resp
}
