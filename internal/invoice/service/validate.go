package service

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return ""
	})
	return v
}

// validateRequest reports every failing field of req at once.
func validateRequest(req any) error {
	violations, err := fieldViolations(req)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return &invoicedomain.ValidationError{Violations: violations}
	}
	return nil
}

// fieldViolations runs the struct tags of req and returns what failed.
func fieldViolations(req any) ([]invoicedomain.FieldViolation, error) {
	err := validate.Struct(req)
	if err == nil {
		return nil, nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil, err
	}

	violations := make([]invoicedomain.FieldViolation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		violations = append(violations, invoicedomain.FieldViolation{
			Field:   fieldPath(fe.Namespace()),
			Code:    fe.Tag(),
			Message: messageFor(fe),
		})
	}
	return violations, nil
}

// mergeViolations appends extra to base, skipping fields base already
// rejects so each field is reported once.
func mergeViolations(base []invoicedomain.FieldViolation, extra ...invoicedomain.FieldViolation) []invoicedomain.FieldViolation {
	seen := lo.SliceToMap(base, func(v invoicedomain.FieldViolation) (string, bool) { return v.Field, true })
	for _, v := range extra {
		if seen[v.Field] {
			continue
		}
		seen[v.Field] = true
		base = append(base, v)
	}
	return base
}

// fieldPath drops the struct name: CreateInvoiceRequest.items[0].quantity
// becomes items[0].quantity.
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

func parseID(raw string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func invalidID(field string) invoicedomain.FieldViolation {
	return invoicedomain.FieldViolation{Field: field, Code: "invalid_id", Message: "is not a valid id"}
}

// parseProductIDs parses the product id of every line, collecting a
// violation for each one that does not parse.
func parseProductIDs(items []invoicedomain.LineItemInput) ([]snowflake.ID, []invoicedomain.FieldViolation) {
	ids := make([]snowflake.ID, len(items))
	var violations []invoicedomain.FieldViolation
	for i, item := range items {
		id, ok := parseID(item.ProductID)
		if !ok {
			violations = append(violations, invalidID(lineField(i, "product_id")))
			continue
		}
		ids[i] = id
	}
	return ids, violations
}

func lineField(index int, name string) string {
	return fmt.Sprintf("items[%d].%s", index, name)
}
