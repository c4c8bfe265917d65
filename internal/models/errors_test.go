package models

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestPersistence_KeepsKindAndCause(t *testing.T) {
	cause := errors.New("duplicate key")
	err := Persistence("insert shipment", cause)
	require.True(t, errors.Is(err, ErrPersistence))
	require.True(t, errors.Is(err, cause))
	require.False(t, errors.Is(err, ErrNotFound))
	require.Equal(t, "insert shipment: persistence failure: duplicate key", err.Error())
}

func TestNotFound(t *testing.T) {
	err := NotFound("shipment PFX-1")
	require.True(t, errors.Is(err, ErrNotFound))
	require.Equal(t, "shipment PFX-1: not found", err.Error())
}

func TestNeedsReopen(t *testing.T) {
	require.True(t, NeedsReopen(SenderTypeCustomer, TicketStatusResolved))
	require.True(t, NeedsReopen(SenderTypeCustomer, TicketStatusClosed))
	require.False(t, NeedsReopen(SenderTypeCustomer, TicketStatusOpen))
	require.False(t, NeedsReopen(SenderTypeAdmin, TicketStatusClosed))
}

func TestShipmentStatuses(t *testing.T) {
	require.True(t, IsShipmentStatus("out-for-delivery"))
	require.False(t, IsShipmentStatus("lost"))
	require.True(t, IsTerminalStatus(ShipmentStatusDelivered))
	require.False(t, IsTerminalStatus(ShipmentStatusHeld))
	require.True(t, ShipmentPatch{}.IsEmpty())
}
