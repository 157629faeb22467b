package editor

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/metaphotor/metaphotor/core"
	"github.com/metaphotor/metaphotor/core/gps"
)

// EditRequest carries every editable field of a catalogued media file.
type EditRequest struct {
	UserID      uint   `json:"user_id"`
	Path        string `json:"path" validate:"required,min=5,max=1024"`
	Title       string `json:"title" validate:"omitempty,min=5,max=265"`
	Description string `json:"description" validate:"omitempty,min=3,max=1024"`
	Comment     string `json:"comment" validate:"omitempty,min=3,max=1024"`
	Tags        string `json:"tags" validate:"omitempty,min=3,max=256"`
	Coords      string `json:"coords" validate:"omitempty,coords"`
	LocationID  *uint  `json:"location_id"`
	Year        int    `json:"year" validate:"year"`
	Created     string `json:"created" validate:"required,created"`
}

// Normalize trims the free-text fields in place.
func (r *EditRequest) Normalize() {
	for _, s := range []*string{&r.Path, &r.Title, &r.Description, &r.Comment, &r.Tags, &r.Coords, &r.Created} {
		*s = strings.TrimSpace(*s)
	}
}

// ValidationError lists the rejected fields of a request by their JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("coords", func(fl validator.FieldLevel) bool {
		lat, _, err := gps.ParseCoords(fl.Field().String())
		return err == nil && lat != nil
	})
	_ = v.RegisterValidation("created", func(fl validator.FieldLevel) bool {
		return core.ValidCreated(fl.Field().String())
	})
	_ = v.RegisterValidation("year", func(fl validator.FieldLevel) bool {
		y := fl.Field().Int()
		return y == 0 || (y >= 1970 && y <= 9999)
	})
	return v
}

// Validate checks req and returns a *ValidationError naming every bad field.
func Validate(req *EditRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = validationMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "coords":
		return "must be \"latitude,longitude\""
	case "created":
		return "must look like " + core.CreatedLayout
	case "year":
		return "must be 0 or a year since 1970"
	}
	return "is invalid"
}
