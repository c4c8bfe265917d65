package shipments

import (
	"context"

	"github.com/BearBump/ShipDesk/internal/auth"
	"github.com/BearBump/ShipDesk/internal/broker/messages"
	"github.com/BearBump/ShipDesk/internal/models"
)

// ApplyScan применяет скан хаба из Kafka от имени системного актора.
func (s *Service) ApplyScan(ctx context.Context, msg messages.ShipmentScanned) (*AppendResult, error) {
	if msg.TrackingNumber == "" {
		return nil, models.InvalidInput("tracking_number is required")
	}
	if msg.Location == "" {
		return nil, models.InvalidInput("location is required")
	}
	ctx = auth.WithActor(ctx, auth.System())
	return s.AppendEvent(ctx, msg.TrackingNumber, msg.Status, msg.Location, msg.Note)
}
