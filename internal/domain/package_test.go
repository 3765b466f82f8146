package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackageDemands(t *testing.T) {
	plates, glasses, linen := uuid.New(), uuid.New(), uuid.New()
	pkg, err := NewPackage(uuid.New(), "Dinner for N", true, []PackageComponent{
		{ProductID: plates, QuantityPerPerson: 2},
		{ProductID: glasses, QuantityPerPerson: 1},
		{ProductID: linen, QuantityPerPerson: 1, Optional: true},
		{ProductID: plates, QuantityPerPerson: 1},
	})
	require.NoError(t, err)

	t.Run("required only", func(t *testing.T) {
		demands, err := pkg.Demands(10, nil)
		require.NoError(t, err)
		assert.Equal(t, []ProductDemand{
			{ProductID: plates, Quantity: 30},
			{ProductID: glasses, Quantity: 10},
		}, demands)
	})

	t.Run("with selected optional", func(t *testing.T) {
		demands, err := pkg.Demands(4, []uuid.UUID{linen})
		require.NoError(t, err)
		assert.Equal(t, []ProductDemand{
			{ProductID: plates, Quantity: 12},
			{ProductID: glasses, Quantity: 4},
			{ProductID: linen, Quantity: 4},
		}, demands)
	})

	t.Run("unknown optional", func(t *testing.T) {
		_, err := pkg.Demands(4, []uuid.UUID{uuid.New()})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("no persons", func(t *testing.T) {
		_, err := pkg.Demands(0, nil)
		assert.ErrorIs(t, err, ErrInvalidRange)
	})
}

func TestNewPackageRejectsBadComponents(t *testing.T) {
	_, err := NewPackage(uuid.New(), "x", true, []PackageComponent{{ProductID: uuid.New(), QuantityPerPerson: 0}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewPackage(uuid.Nil, "x", true, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
