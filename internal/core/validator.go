package core

import (
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"seatscan/internal/types"
)

var iataPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Validator wraps go-playground/validator with the domain-specific rules the
// request DTOs use:
//
//   - iata:        three uppercase letters (airport code)
//   - flightdate:  YYYY-MM-DD
//   - travelclass: one of the closed TravelClass set
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers the custom tags.
func NewValidator(logger *slog.Logger) (*Validator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()

	if err := v.RegisterValidation("iata", func(fl validator.FieldLevel) bool {
		return iataPattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, err
	}
	if err := v.RegisterValidation("flightdate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("2006-01-02", fl.Field().String())
		return err == nil
	}); err != nil {
		return nil, err
	}
	if err := v.RegisterValidation("travelclass", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		switch types.TravelClass(s) {
		case types.ClassEconomy, types.ClassPremium, types.ClassBusiness, types.ClassFirst:
			return true
		}
		return false
	}); err != nil {
		return nil, err
	}

	return &Validator{validate: v, logger: logger}, nil
}

// ValidateStruct validates the DTO and translates failures into a 400-class
// AppError listing the offending fields.
func (v *Validator) ValidateStruct(dst interface{}) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: the DTO itself is not validatable, which is
		// a programming error, not client input.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request validation failed",
		err,
		map[string]any{"fields": fields},
	)
}
