package catalog

import (
	"fmt"
	"strings"

	"github.com/longle289/TrustAustralia/models"
)

const (
	SiteName     = "Trust Australia"
	SupportEmail = "support@trustaustralia.com.au"
)

// Product is one sellable document package. Prices are in cents (AUD).
type Product struct {
	Key              string
	Type             models.ProductType
	Name             string
	Description      string
	Price            int64
	CancelPath       string
	ManualProcessing bool
	Confirmation     string
	NextSteps        []string
}

var products = []Product{
	{
		Key:          "discretionary",
		Type:         models.ProductDiscretionary,
		Name:         "Discretionary Trust Deed",
		Description:  "Also known as a Family Trust. Ideal for asset protection, tax planning, and distributing income to beneficiaries at the trustee's discretion.",
		Price:        16500,
		CancelPath:   "/create/discretionary",
		Confirmation: "Your Discretionary Trust Deed is ready for download.",
		NextSteps: []string{
			"Download your trust deed from the success page",
			"Print the trust deed and have it signed by the settlor and trustee",
			"Have the settlor provide the settlement sum (usually $10) to the trustee",
			"Store the original signed trust deed safely",
			"Consider having the deed reviewed by a legal professional",
		},
	},
	{
		Key:          "unit",
		Type:         models.ProductUnit,
		Name:         "Unit Trust Deed",
		Description:  "Fixed entitlement trust where beneficiaries hold units. Perfect for joint ventures, investment groups, and property syndications.",
		Price:        18500,
		CancelPath:   "/create/unit",
		Confirmation: "Your Unit Trust Deed is ready for download.",
		NextSteps: []string{
			"Download your trust deed from the success page",
			"Print the trust deed and have it signed by the settlor and trustee",
			"Have the settlor provide the settlement sum (usually $10) to the trustee",
			"Issue unit certificates to unit holders",
			"Store the original signed trust deed safely",
		},
	},
	{
		Key:              "discretionary-bundle",
		Type:             models.ProductDiscretionaryBundle,
		Name:             "Discretionary Trust Bundle",
		Description:      "Complete trust setup solution with corporate trustee. Includes company registration, trust deed, and all ATO registrations to get your trust operational.",
		Price:            77600,
		CancelPath:       "/create/discretionary-bundle",
		ManualProcessing: true,
		Confirmation:     "Your Discretionary Trust Bundle order is being processed. We will register your corporate trustee company with ASIC and complete all ATO registrations.",
		NextSteps: []string{
			"We will register your corporate trustee company with ASIC (24-48 hours)",
			"You will receive your company documents and ACN via email",
			"We will apply for the trust ABN and TFN with the ATO",
			"You will receive your trust deed for signing",
			"Once all registrations are complete, your trust will be ready to operate",
		},
	},
	{
		Key:              "company-registration",
		Type:             models.ProductCompanyRegistration,
		Name:             "Company Registration",
		Description:      "Register your Australian proprietary limited company (Pty Ltd). Perfect for starting a business with limited liability protection.",
		Price:            12400,
		CancelPath:       "/register/company",
		ManualProcessing: true,
		Confirmation:     "Your company registration is being processed. We will lodge with ASIC and you should receive your ACN within 24-48 hours.",
		NextSteps: []string{
			"We will lodge your company registration with ASIC",
			"You should receive your ACN within 24-48 hours",
			"We will email you all company documents including your constitution",
			"We will assist with your ABN application",
			"Store your company documents safely",
		},
	},
	{
		Key:              "smsf-bundle",
		Type:             models.ProductSMSFBundle,
		Name:             "SMSF Trustee Bundle",
		Description:      "Save time with simultaneous SMSF setup and Corporate Trustee registration. Everything you need to get your self-managed super fund operational.",
		Price:            98500,
		CancelPath:       "/create/smsf-bundle",
		ManualProcessing: true,
		Confirmation:     "Your SMSF Trustee Bundle order is being processed. We will register your corporate trustee company with ASIC and complete all ATO and SMSF registrations.",
		NextSteps: []string{
			"We will register your corporate trustee company with ASIC",
			"We will register your SMSF with the ATO",
			"You will receive your SMSF trust deed and company documents",
			"Use the rollover forms to transfer your existing super",
			"Appoint an SMSF auditor for your annual audit requirements",
		},
	},
}

// Lookup resolves a product by its URL key ("discretionary-bundle") or by its
// order enum ("DISCRETIONARY_BUNDLE").
func Lookup(key string) (Product, bool) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "_", "-"))
	if norm == "" {
		return Product{}, false
	}
	for _, p := range products {
		if p.Key == norm {
			return p, true
		}
	}
	return Product{}, false
}

func ByType(t models.ProductType) (Product, bool) {
	for _, p := range products {
		if p.Type == t {
			return p, true
		}
	}
	return Product{}, false
}

func All() []Product {
	out := make([]Product, len(products))
	copy(out, products)
	return out
}

// FormatAmount renders cents the way receipts and emails show them: "$165.00 AUD".
func FormatAmount(cents int64) string {
	return fmt.Sprintf("$%d.%02d AUD", cents/100, cents%100)
}
