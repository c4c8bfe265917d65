// Package format: best-effort нормализация адресов, веса и времени для отображения.
// Функции никогда не возвращают ошибку: на мусорном входе деградируют к пустым/дефолтным значениям.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/BearBump/ShipDesk/internal/models"
)

const (
	DateLayout = "01/02/2006"
	TimeLayout = "15:04"

	defaultOriginCity = "Central"
)

func splitAddress(address string) []string {
	if address == "" {
		return nil
	}
	raw := strings.FieldsFunc(address, func(r rune) bool { return r == ',' || r == '\n' || r == '\r' })
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExtractCityCountry: последний сегмент — страна, предпоследний — город.
// Один сегмент считается городом.
func ExtractCityCountry(address string) (city, country string) {
	parts := splitAddress(address)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[len(parts)-2], parts[len(parts)-1]
	}
}

// OriginLocation строит начальную локацию нового отправления.
func OriginLocation(senderAddress string) string {
	city, _ := ExtractCityCountry(senderAddress)
	if city == "" {
		city = defaultOriginCity
	}
	return city + " Logistics Center"
}

// FormatWeight принимает строку или число. Чисто числовое значение получает суффикс " kg",
// значение с буквами (уже с единицей) возвращается как есть.
func FormatWeight(v any) string {
	var raw string
	switch x := v.(type) {
	case nil:
		return "0 kg"
	case string:
		raw = x
	case float64:
		raw = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		raw = strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		raw = strconv.Itoa(x)
	case int64:
		raw = strconv.FormatInt(x, 10)
	case fmt.Stringer:
		raw = x.String()
	default:
		raw = fmt.Sprint(x)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "0 kg"
	}
	if strings.IndexFunc(raw, isASCIILetter) >= 0 {
		return raw
	}
	return raw + " kg"
}

func isASCIILetter(r rune) bool {
	return r < unicode.MaxASCII && unicode.IsLetter(r)
}

// FormatTimestamp разбирает RFC3339 и возвращает дату/время для отображения.
func FormatTimestamp(ts string) (date, clock string) {
	if ts == "" {
		return "", ""
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "", ""
	}
	return FormatTime(t)
}

func FormatTime(t time.Time) (date, clock string) {
	if t.IsZero() {
		return "", ""
	}
	t = t.UTC()
	return t.Format(DateLayout), t.Format(TimeLayout)
}

func StatusLabel(status string) string {
	if status == "" {
		return "Shipment update"
	}
	return strings.ReplaceAll(status, "-", " ")
}

type DisplayEvent struct {
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Note        string    `json:"note,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// DisplayHistory: производное представление истории; даты/время не авторитетны.
func DisplayHistory(history []models.ShipmentEvent) []DisplayEvent {
	out := make([]DisplayEvent, 0, len(history))
	for _, e := range history {
		date, clock := FormatTime(e.Timestamp)
		loc := e.Location
		if loc == "" {
			loc = "Unknown"
		}
		desc := e.Note
		if desc == "" {
			if e.Status != "" {
				desc = "Status updated to " + StatusLabel(e.Status)
			} else {
				desc = "Shipment update"
			}
		}
		out = append(out, DisplayEvent{
			Date:        date,
			Time:        clock,
			Location:    loc,
			Description: desc,
			Status:      e.Status,
			Note:        e.Note,
			Timestamp:   e.Timestamp,
		})
	}
	return out
}

type PartyView struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	Country string `json:"country"`
	Email   string `json:"email"`
}

// TrackingView: то, что видит публичная страница трекинга.
type TrackingView struct {
	TrackingNumber  string              `json:"tracking_number"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"payment_status"`
	Origin          string              `json:"origin"`
	Destination     string              `json:"destination"`
	CurrentLocation string              `json:"current_location"`
	Weight          string              `json:"weight"`
	Price           *float64            `json:"price,omitempty"`
	Sender          PartyView           `json:"sender"`
	Recipient       PartyView           `json:"recipient"`
	Coordinates     *models.Coordinates `json:"coordinates,omitempty"`
	History         []DisplayEvent      `json:"history"`
	CreatedAt       time.Time           `json:"created_at"`
}

func BuildTrackingView(s *models.Shipment) TrackingView {
	sender := partyView(s.Sender)
	recipient := partyView(s.Receiver)

	status := s.Status
	if status == "" {
		status = models.ShipmentStatusPending
	}
	current := s.CurrentLocation
	if current == "" {
		current = "Pending"
	}

	return TrackingView{
		TrackingNumber:  s.TrackingNumber,
		Status:          status,
		PaymentStatus:   s.PaymentStatus,
		Origin:          placeOrFallback(s.Sender.Address, sender),
		Destination:     placeOrFallback(s.Receiver.Address, recipient),
		CurrentLocation: current,
		Weight:          FormatWeight(s.Parcel.Weight),
		Price:           s.Price,
		Sender:          sender,
		Recipient:       recipient,
		Coordinates:     s.Coordinates,
		History:         DisplayHistory(s.History),
		CreatedAt:       s.CreatedAt,
	}
}

func partyView(p models.Party) PartyView {
	city, country := ExtractCityCountry(p.Address)
	name := p.Name
	if name == "" {
		name = "Unknown"
	}
	street := p.Address
	if street == "" {
		street = "Unknown"
	}
	return PartyView{Name: name, Street: street, City: city, Country: country, Email: p.Email}
}

func placeOrFallback(address string, v PartyView) string {
	if address != "" {
		return address
	}
	parts := make([]string, 0, 2)
	for _, s := range []string{v.City, v.Country} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, ", ")
}
