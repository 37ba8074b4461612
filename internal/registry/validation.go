package registry

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// report fields by their wire name
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidateStruct checks struct tags and converts failures into a
// ValidationError with one FieldError per offending field.
func ValidateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return ValidationFailed(fields...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// ValidateProject checks field constraints and the verifiedAt/status pairing
func ValidateProject(p Project) error {
	if err := ValidateStruct(p); err != nil {
		return err
	}
	if (p.Status == ProjectStatusVerified) != (p.VerifiedAt != nil) {
		return FieldInvalid("verified_at", "must be set exactly when status is verified")
	}
	return nil
}

// ValidateCredit checks field constraints and the retirement field pairing
func ValidateCredit(c CarbonCredit) error {
	if err := ValidateStruct(c); err != nil {
		return err
	}
	if math.IsNaN(c.Price) || math.IsInf(c.Price, 0) {
		return FieldInvalid("price", "must be a finite number")
	}
	retired := c.Status == CreditStatusRetired
	if retired != (c.RetiredAt != nil) || retired != (c.RetiredBy != nil) {
		return FieldInvalid("retired_at", "retired_at and retired_by must be set exactly when status is retired")
	}
	if retired && *c.RetiredBy == "" {
		return FieldInvalid("retired_by", "is required")
	}
	return nil
}

// ValidateTransaction checks field constraints and per-type nullability
func ValidateTransaction(t Transaction) error {
	if err := ValidateStruct(t); err != nil {
		return err
	}
	switch t.Type {
	case TransactionTypeMinting:
		if t.FromUserID != nil {
			return FieldInvalid("from_user_id", "must be null for minting")
		}
		if t.Price != nil {
			return FieldInvalid("price", "must be null for minting")
		}
	case TransactionTypeRetirement:
		if t.ToUserID != nil {
			return FieldInvalid("to_user_id", "must be null for retirement")
		}
		if t.Price != nil {
			return FieldInvalid("price", "must be null for retirement")
		}
	}
	if t.Price != nil && *t.Price < 0 {
		return FieldInvalid("price", "must be at least 0")
	}
	return nil
}

// ValidateSensorReading only insists on a project reference and a finite value
func ValidateSensorReading(s SensorReading) error {
	if err := ValidateStruct(s); err != nil {
		return err
	}
	if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
		return FieldInvalid("value", "must be a finite number")
	}
	return nil
}

// ValidateUser checks field constraints
func ValidateUser(u User) error {
	return ValidateStruct(u)
}
