package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/chungtau/txn-webhook/internal/model"
)

// requiredOrder is the order missing fields are listed in
var requiredOrder = []string{
	"transaction_id",
	"source_account",
	"destination_account",
	"amount",
	"currency",
}

// checkOrder is the order field constraints are reported in; only the first
// violation is returned
var checkOrder = []string{
	"transaction_id",
	"amount",
	"currency",
	"source_account",
	"destination_account",
}

var fieldMessages = map[string]string{
	"transaction_id":      "transaction_id must be a string with at least 5 characters",
	"amount":              "amount must be a positive number",
	"currency":            "currency must be a 3-character string (e.g., 'USD', 'INR')",
	"source_account":      "source_account must be a string with at least 3 characters",
	"destination_account": "destination_account must be a string with at least 3 characters",
}

const sameAccountMessage = "source_account and destination_account cannot be the same"

var precisionMessage = fmt.Sprintf("amount must have at most %d integer digits and %d decimal places",
	model.AmountIntegerDigits, model.AmountScale)

// Error is a rejected submission; Error() is safe to show to the caller
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Validator checks webhook submissions before anything is persisted
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator that understands decimal amounts and reports
// fields by their JSON names
func New() *Validator {
	v := validator.New()

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validate: v}
}

// Validate returns nil when sub can be accepted, or an *Error describing
// the first problem found
func (v *Validator) Validate(sub model.Submission) error {
	failed := make(map[string]string)
	if err := v.validate.Struct(sub); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return &Error{Message: "Invalid transaction payload"}
		}
		for _, fe := range fieldErrs {
			failed[fe.Field()] = fe.Tag()
		}
	}

	// Checked on the decimal itself; the tag validators see a float64
	if _, ok := failed["amount"]; !ok && sub.Amount != nil && !model.AmountFits(*sub.Amount) {
		failed["amount"] = "precision"
	}
	if len(failed) == 0 {
		return nil
	}

	var missing []string
	for _, field := range requiredOrder {
		if failed[field] == "required" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &Error{Message: "Missing required fields: " + strings.Join(missing, ", ")}
	}

	for _, field := range checkOrder {
		tag, ok := failed[field]
		if !ok {
			continue
		}
		switch tag {
		case "nefield":
			return &Error{Message: sameAccountMessage}
		case "precision":
			return &Error{Message: precisionMessage}
		}
		return &Error{Message: fieldMessages[field]}
	}

	return &Error{Message: "Invalid transaction payload"}
}
