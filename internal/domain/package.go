package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PackageComponent struct {
	ProductID         uuid.UUID
	QuantityPerPerson int
	Optional          bool
}

// Package is a bundle of products rented together and priced per person.
// Components keep catalog order.
type Package struct {
	ID           uuid.UUID
	Name         string
	IsActive     bool
	Components   []PackageComponent
	UpdatedAtUtc time.Time
}

// ProductDemand is how many units of one product a request needs.
type ProductDemand struct {
	ProductID uuid.UUID
	Quantity  int
}

func NewPackage(id uuid.UUID, name string, active bool, components []PackageComponent) (*Package, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: package id is required", ErrInvalidArgument)
	}
	for i, c := range components {
		if c.ProductID == uuid.Nil {
			return nil, fmt.Errorf("%w: component %d has no product", ErrInvalidArgument, i)
		}
		if c.QuantityPerPerson <= 0 {
			return nil, fmt.Errorf("%w: component %d quantity per person must be positive", ErrInvalidArgument, i)
		}
	}
	return &Package{
		ID:           id,
		Name:         name,
		IsActive:     active,
		Components:   components,
		UpdatedAtUtc: time.Now().UTC(),
	}, nil
}

// Demands expands the package for a number of persons: every required
// component plus the selected optional ones. A product listed twice is
// merged into its first position.
func (p *Package) Demands(persons int, selectedOptional []uuid.UUID) ([]ProductDemand, error) {
	if persons <= 0 {
		return nil, fmt.Errorf("%w: persons must be positive", ErrInvalidRange)
	}

	selected := make(map[uuid.UUID]bool, len(selectedOptional))
	for _, id := range selectedOptional {
		selected[id] = false
	}

	var demands []ProductDemand
	index := map[uuid.UUID]int{}
	for _, c := range p.Components {
		if c.Optional {
			if _, ok := selected[c.ProductID]; !ok {
				continue
			}
			selected[c.ProductID] = true
		}
		qty := c.QuantityPerPerson * persons
		if i, ok := index[c.ProductID]; ok {
			demands[i].Quantity += qty
			continue
		}
		index[c.ProductID] = len(demands)
		demands = append(demands, ProductDemand{ProductID: c.ProductID, Quantity: qty})
	}

	for id, used := range selected {
		if !used {
			return nil, fmt.Errorf("%w: product %s is not an optional component of package %s", ErrInvalidArgument, id, p.ID)
		}
	}
	return demands, nil
}
