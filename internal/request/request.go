package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"fsoi/internal/services"
)

const dateLayout = "20060102"

// MaxRangeDays bounds the number of days one request may cover.
const MaxRangeDays = 366

// Request is a validated processing request. Only the semantic fields feed the
// fingerprint; RootDir, RequestID and ConnectionID are transport metadata.
type Request struct {
	Centers   []string  `json:"centers" validate:"required,min=1,unique,dive,required,excludesall=/"`
	StartDate string    `json:"start_date" validate:"required,yyyymmdd"`
	EndDate   string    `json:"end_date" validate:"required,yyyymmdd"`
	Cycles    CycleList `json:"cycles" validate:"required,min=1,unique,dive,cycle"`
	Norm      string    `json:"norm" validate:"required,oneof=dry moist"`
	Platforms string    `json:"platforms" validate:"required"`
	Interval  int       `json:"interval" validate:"gt=0"`

	RootDir      string `json:"root_dir,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// CycleList holds two-digit cycle hours. JSON input may use numbers or strings.
type CycleList []string

// UnmarshalJSON accepts [0, 6] as well as ["00", "06"].
func (c *CycleList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("cycles: %w", err)
	}
	out := make(CycleList, 0, len(raw))
	for _, item := range raw {
		var text string
		if err := json.Unmarshal(item, &text); err != nil {
			var number int
			if numErr := json.Unmarshal(item, &number); numErr != nil {
				return fmt.Errorf("cycles: %s is neither a string nor an integer", string(item))
			}
			text = strconv.Itoa(number)
		}
		out = append(out, normalizeCycle(text))
	}
	*c = out
	return nil
}

func normalizeCycle(value string) string {
	value = strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(value)), "Z")
	if n, err := strconv.Atoi(value); err == nil && n >= 0 && n < 100 {
		return fmt.Sprintf("%02d", n)
	}
	return value
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("yyyymmdd", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(dateLayout, fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("cycle", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Field().String())
		return err == nil && len(fl.Field().String()) == 2 && n >= 0 && n <= 23
	})
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode strictly parses a JSON request and validates it.
func Decode(r io.Reader) (*Request, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var req Request
	if err := dec.Decode(&req); err != nil {
		return nil, services.Wrap(services.ErrValidation, "request", "decode", "malformed request body", err)
	}
	if dec.More() {
		return nil, services.Wrap(services.ErrValidation, "request", "decode", "unexpected data after request object", nil)
	}
	if err := Validate(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// DecodeBytes is a convenience wrapper around Decode.
func DecodeBytes(data []byte) (*Request, error) {
	return Decode(bytes.NewReader(data))
}

// Validate normalizes the request in place and checks every field.
func Validate(req *Request) error {
	if req == nil {
		return services.Wrap(services.ErrValidation, "request", "validate", "request is required", nil)
	}
	req.normalize()
	if err := validate.Struct(req); err != nil {
		return services.Wrap(services.ErrValidation, "request", "validate", describe(err), nil)
	}
	if req.StartDate > req.EndDate {
		return services.Wrap(services.ErrValidation, "request", "validate",
			fmt.Sprintf("start_date %s is after end_date %s", req.StartDate, req.EndDate), nil)
	}
	if days := rangeDays(req.StartDate, req.EndDate); days > MaxRangeDays {
		return services.Wrap(services.ErrValidation, "request", "validate",
			fmt.Sprintf("date range covers %d days; at most %d are allowed", days, MaxRangeDays), nil)
	}
	return nil
}

// rangeDays counts the days from start to end inclusive. Both dates are
// already known to parse.
func rangeDays(start, end string) int {
	first, _ := time.Parse(dateLayout, start)
	last, _ := time.Parse(dateLayout, end)
	return int(last.Sub(first)/(24*time.Hour)) + 1
}

func (r *Request) normalize() {
	for i, center := range r.Centers {
		r.Centers[i] = strings.TrimSpace(center)
	}
	for i, cycle := range r.Cycles {
		r.Cycles[i] = normalizeCycle(cycle)
	}
	r.StartDate = strings.TrimSpace(r.StartDate)
	r.EndDate = strings.TrimSpace(r.EndDate)
	r.Norm = strings.ToLower(strings.TrimSpace(r.Norm))
	r.Platforms = strings.TrimSpace(r.Platforms)
	r.RootDir = strings.TrimSpace(r.RootDir)
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "min":
			parts = append(parts, fmt.Sprintf("%s needs at least %s entries", field, fe.Param()))
		case "unique":
			parts = append(parts, field+" must not contain duplicates")
		case "yyyymmdd":
			parts = append(parts, fmt.Sprintf("%s %q is not a YYYYMMDD date", field, fe.Value()))
		case "cycle":
			parts = append(parts, fmt.Sprintf("%s %q is not a cycle hour between 00 and 23", field, fe.Value()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		case "gt":
			parts = append(parts, fmt.Sprintf("%s must be greater than %s", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// Clone returns a deep copy so callers can mutate slices freely.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Centers = append([]string(nil), r.Centers...)
	clone.Cycles = append(CycleList(nil), r.Cycles...)
	return &clone
}

// BeginDate is the first analysis time, start_date followed by the first cycle.
func (r *Request) BeginDate() string {
	return r.StartDate + r.Cycles[0]
}

// FinalDate is the last analysis time, end_date followed by the last cycle.
func (r *Request) FinalDate() string {
	return r.EndDate + r.Cycles[len(r.Cycles)-1]
}

// DatesInRange lists every day from start to end inclusive as YYYYMMDD.
func DatesInRange(start, end string) ([]string, error) {
	first, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("parse start date %q: %w", start, err)
	}
	last, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("parse end date %q: %w", end, err)
	}
	var dates []string
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		dates = append(dates, day.Format(dateLayout))
	}
	return dates, nil
}
