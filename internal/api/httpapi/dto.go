package httpapi

import "github.com/BearBump/ShipDesk/internal/models"

type partyRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email,max=254"`
	Address string `json:"address" validate:"max=500"`
	Phone   string `json:"phone" validate:"max=50"`
}

func (p partyRequest) model() models.Party {
	return models.Party{Name: p.Name, Email: p.Email, Address: p.Address, Phone: p.Phone}
}

type parcelRequest struct {
	Description string `json:"description" validate:"max=1000"`
	Weight      string `json:"weight" validate:"max=50"`
	Quantity    string `json:"quantity" validate:"max=20"`
	Type        string `json:"type" validate:"max=50"`
}

type createShipmentRequest struct {
	Sender   partyRequest  `json:"sender_info"`
	Receiver partyRequest  `json:"receiver_info"`
	Parcel   parcelRequest `json:"parcel_details"`
}

func (r createShipmentRequest) model() models.ShipmentCreateInput {
	return models.ShipmentCreateInput{
		Sender:   r.Sender.model(),
		Receiver: r.Receiver.model(),
		Parcel: models.ParcelDetails{
			Description: r.Parcel.Description,
			Weight:      r.Parcel.Weight,
			Quantity:    r.Parcel.Quantity,
			Type:        r.Parcel.Type,
		},
	}
}

type coordinatesRequest struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type updateShipmentRequest struct {
	Status          *string             `json:"status" validate:"omitempty,shipment_status"`
	PaymentStatus   *string             `json:"payment_status" validate:"omitempty,oneof=paid unpaid"`
	CurrentLocation *string             `json:"current_location" validate:"omitempty,max=200"`
	Price           *float64            `json:"price" validate:"omitempty,gte=0"`
	Coordinates     *coordinatesRequest `json:"coordinates"`
}

func (r updateShipmentRequest) model() models.ShipmentPatch {
	p := models.ShipmentPatch{
		Status:          r.Status,
		PaymentStatus:   r.PaymentStatus,
		CurrentLocation: r.CurrentLocation,
		Price:           r.Price,
	}
	if r.Coordinates != nil {
		p.Coordinates = &models.Coordinates{Lat: r.Coordinates.Lat, Lng: r.Coordinates.Lng}
	}
	return p
}

type appendEventRequest struct {
	Status   string `json:"status" validate:"required,shipment_status"`
	Location string `json:"location" validate:"required,max=200"`
	Note     string `json:"note" validate:"max=1000"`
}

type appendEventResponse struct {
	Shipment *models.Shipment `json:"shipment"`
	Appended bool             `json:"appended"`
}

type createTicketRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=5000"`
}

type replyRequest struct {
	Message string `json:"message" validate:"required,max=5000"`
}

type replyResponse struct {
	Reply   *models.TicketReply   `json:"reply"`
	Ticket  *models.SupportTicket `json:"ticket"`
	Warning string                `json:"warning,omitempty"`
}

type ticketStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open in_progress resolved closed"`
}

type profileRequest struct {
	FullName string `json:"full_name" validate:"required,max=200"`
	Phone    string `json:"phone" validate:"max=50"`
	Company  string `json:"company" validate:"max=200"`
	Address  string `json:"address" validate:"max=500"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin client"`
}

type adminProfileRequest struct {
	FullName string `json:"full_name" validate:"required,max=200"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Phone    string `json:"phone" validate:"max=50"`
	Company  string `json:"company" validate:"max=200"`
	Address  string `json:"address" validate:"max=500"`
	Role     string `json:"role" validate:"required,oneof=admin client"`
}

func (r adminProfileRequest) model() models.ProfileUpdate {
	return models.ProfileUpdate{
		FullName: r.FullName,
		Email:    r.Email,
		Phone:    r.Phone,
		Company:  r.Company,
		Address:  r.Address,
		Role:     r.Role,
	}
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Role  string `json:"role" validate:"omitempty,oneof=admin client"`
}

type chatMessageRequest struct {
	Message string `json:"message" validate:"required,max=5000"`
}

type chatStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active closed"`
}
