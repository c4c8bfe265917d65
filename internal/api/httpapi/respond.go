package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/BearBump/ShipDesk/internal/models"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error  string       `json:"error"`
	Fields []fieldError `json:"fields,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var fieldMessages = map[string]string{
	"required":        "field is required",
	"email":           "invalid email format",
	"max":             "value is too long",
	"gte":             "value must not be negative",
	"oneof":           "unsupported value",
	"shipment_status": "unknown shipment status",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("shipment_status", func(fl validator.FieldLevel) bool {
		return models.IsShipmentStatus(fl.Field().String())
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err.Error())
	}
}

// decode читает JSON-тело и валидирует его по тегам validate.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed JSON body"})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return false
		}
		out := errorResponse{Error: "validation failed"}
		for _, e := range verrs {
			msg := fieldMessages[e.Tag()]
			if msg == "" {
				msg = e.Error()
			}
			out.Fields = append(out.Fields, fieldError{Field: fieldPath(e.Namespace()), Message: msg})
		}
		writeJSON(w, http.StatusBadRequest, out)
		return false
	}
	return true
}

// fieldPath отрезает имя корневой структуры: "createTicketRequest.email" -> "email".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError: для 5xx клиент получает общий текст, подробности — только в лог.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", msg)
		msg = "internal error"
		if errors.Is(err, models.ErrPersistence) {
			msg = "the change could not be saved"
		}
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func queryLimit(r *http.Request) int { return queryInt(r, "limit") }

// queryInt: отсутствующее или кривое значение даёт 0, дальше решает сервис.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func httpCode(status int) string { return strconv.Itoa(status) }
