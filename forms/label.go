package forms

import (
	"encoding/json"
	"strings"

	"github.com/longle289/TrustAustralia/models"
)

type labelProbe struct {
	TrustDetails *struct {
		TrustName string `json:"trustName"`
	} `json:"trustDetails"`
	CompanyDetails *struct {
		ProposedName string `json:"proposedName"`
	} `json:"companyDetails"`
	SMSFDetails *struct {
		FundName string `json:"fundName"`
	} `json:"smsfDetails"`
}

// EntityLabel names the trust, company or fund a payload describes. It never
// fails; anything it cannot read falls back to a generic label.
func EntityLabel(pt models.ProductType, raw []byte) string {
	var probe labelProbe
	_ = json.Unmarshal(raw, &probe)

	switch pt {
	case models.ProductDiscretionary, models.ProductUnit, models.ProductDiscretionaryBundle:
		if probe.TrustDetails != nil && strings.TrimSpace(probe.TrustDetails.TrustName) != "" {
			return probe.TrustDetails.TrustName
		}
		return "Your Trust"
	case models.ProductCompanyRegistration:
		if probe.CompanyDetails != nil && strings.TrimSpace(probe.CompanyDetails.ProposedName) != "" {
			return probe.CompanyDetails.ProposedName
		}
		return "Your Company"
	case models.ProductSMSFBundle:
		if probe.SMSFDetails != nil && strings.TrimSpace(probe.SMSFDetails.FundName) != "" {
			return probe.SMSFDetails.FundName
		}
		return "Your SMSF"
	}
	return "Your Order"
}
