package forms

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/longle289/TrustAustralia/models"
)

var australianStates = map[string]bool{
	"NSW": true, "VIC": true, "QLD": true, "SA": true,
	"WA": true, "TAS": true, "NT": true, "ACT": true,
}

var ErrUnsupportedProduct = errors.New("no form schema for product")

// FieldError is one failed rule, addressed by its JSON path.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError collects every problem found in a form payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Field, f.Rule))
	}
	return "invalid form data: " + strings.Join(parts, ", ")
}

// FormValidator checks formData payloads against the schema of their product.
type FormValidator struct {
	validate *validator.Validate
}

func NewFormValidator() *FormValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("au_state", func(fl validator.FieldLevel) bool {
		return australianStates[fl.Field().String()]
	})
	v.RegisterStructValidation(partyStructLevel, Party{})
	return &FormValidator{validate: v}
}

func partyStructLevel(sl validator.StructLevel) {
	p := sl.Current().Interface().(Party)
	switch p.Type {
	case PartyIndividual:
		if p.Individual == nil {
			sl.ReportError(p.Individual, "individual", "Individual", "required", "")
		}
	case PartyCompany:
		if p.Company == nil {
			sl.ReportError(p.Company, "company", "Company", "required", "")
		}
	}
}

func newForm(pt models.ProductType) interface{} {
	switch pt {
	case models.ProductDiscretionary:
		return &DiscretionaryTrustForm{}
	case models.ProductUnit:
		return &UnitTrustForm{}
	case models.ProductDiscretionaryBundle:
		return &DiscretionaryBundleForm{}
	case models.ProductCompanyRegistration:
		return &CompanyRegistrationForm{}
	case models.ProductSMSFBundle:
		return &SMSFBundleForm{}
	}
	return nil
}

// Decode parses raw into the product's form struct and validates it. The
// returned value is a pointer to one of the *Form types in this package.
func (fv *FormValidator) Decode(pt models.ProductType, raw []byte) (interface{}, error) {
	form := newForm(pt)
	if form == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProduct, pt)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ValidationError{Fields: []FieldError{{Field: "formData", Rule: "required"}}}
	}
	if err := json.Unmarshal(raw, form); err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "formData", Rule: "json"}}}
	}

	if err := fv.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		out := &ValidationError{}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, FieldError{Field: trimRoot(fe.Namespace()), Rule: fe.Tag()})
		}
		return nil, out
	}
	return form, nil
}

// Validate is Decode without the result.
func (fv *FormValidator) Validate(pt models.ProductType, raw []byte) error {
	_, err := fv.Decode(pt, raw)
	return err
}

// trimRoot drops the Go type name validator puts in front of every namespace.
func trimRoot(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
