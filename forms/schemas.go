package forms

const (
	PartyIndividual = "individual"
	PartyCompany    = "company"
)

type Address struct {
	Street   string `json:"street" validate:"required"`
	Suburb   string `json:"suburb" validate:"required"`
	State    string `json:"state" validate:"required,au_state"`
	Postcode string `json:"postcode" validate:"required,len=4,numeric"`
}

type Person struct {
	FirstName string  `json:"firstName" validate:"required"`
	LastName  string  `json:"lastName" validate:"required"`
	Address   Address `json:"address"`
}

type Company struct {
	Name    string  `json:"name" validate:"required"`
	ACN     string  `json:"acn" validate:"required,len=9,numeric"`
	Address Address `json:"address"`
}

// Party is an individual-or-company union discriminated by Type. Trustees,
// appointers and unit/share holders all use it.
type Party struct {
	Type       string   `json:"type" validate:"required,oneof=individual company"`
	Individual *Person  `json:"individual,omitempty"`
	Company    *Company `json:"company,omitempty"`
}

// DisplayName is the name printed on documents for this party.
func (p Party) DisplayName() string {
	switch {
	case p.Type == PartyCompany && p.Company != nil:
		return p.Company.Name
	case p.Individual != nil:
		return p.Individual.FirstName + " " + p.Individual.LastName
	}
	return ""
}

type TrustDetails struct {
	TrustName         string `json:"trustName" validate:"required,max=100"`
	EstablishmentDate string `json:"establishmentDate" validate:"required"`
	State             string `json:"state" validate:"required,au_state"`
}

type Settlor struct {
	FirstName     string  `json:"firstName" validate:"required"`
	LastName      string  `json:"lastName" validate:"required"`
	Address       Address `json:"address"`
	SettlementSum string  `json:"settlementSum" validate:"required"`
}

type Beneficiaries struct {
	PrimaryBeneficiaries    []Person `json:"primaryBeneficiaries" validate:"required,min=1,dive"`
	IncludeSpouses          *bool    `json:"includeSpouses,omitempty"`
	IncludeChildren         *bool    `json:"includeChildren,omitempty"`
	IncludeGrandchildren    *bool    `json:"includeGrandchildren,omitempty"`
	IncludeRelatedCompanies *bool    `json:"includeRelatedCompanies,omitempty"`
	IncludeRelatedTrusts    *bool    `json:"includeRelatedTrusts,omitempty"`
}

// Includes reports a beneficiary class flag; classes default to included.
func Includes(flag *bool) bool {
	return flag == nil || *flag
}

type UnitHolder struct {
	Holder Party   `json:"holder"`
	Units  float64 `json:"units" validate:"gte=1"`
}

type UnitHolders struct {
	TotalUnits float64      `json:"totalUnits" validate:"omitempty,gte=1"`
	Holders    []UnitHolder `json:"holders" validate:"required,min=1,dive"`
}

type DiscretionaryTrustForm struct {
	TrustDetails  TrustDetails  `json:"trustDetails"`
	Settlor       Settlor       `json:"settlor"`
	Trustee       Party         `json:"trustee"`
	Beneficiaries Beneficiaries `json:"beneficiaries"`
	Appointer     Party         `json:"appointer"`
}

type UnitTrustForm struct {
	TrustDetails TrustDetails `json:"trustDetails"`
	Settlor      Settlor      `json:"settlor"`
	Trustee      Party        `json:"trustee"`
	UnitHolders  UnitHolders  `json:"unitHolders"`
	Appointer    Party        `json:"appointer"`
}

type Director struct {
	FirstName   string  `json:"firstName" validate:"required"`
	LastName    string  `json:"lastName" validate:"required"`
	DateOfBirth string  `json:"dateOfBirth" validate:"required"`
	Address     Address `json:"address"`
	Email       string  `json:"email" validate:"required,email"`
	Phone       string  `json:"phone" validate:"required"`
}

type Shareholder struct {
	Holder Party   `json:"holder"`
	Shares float64 `json:"shares" validate:"gte=1"`
}

type Shareholders struct {
	TotalShares float64       `json:"totalShares" validate:"omitempty,gte=1"`
	Holders     []Shareholder `json:"holders" validate:"required,min=1,dive"`
}

type CompanyDetails struct {
	ProposedName string `json:"proposedName" validate:"required"`
	CompanyType  string `json:"companyType" validate:"required,oneof=pty-ltd pty-ltd-smsf"`
	State        string `json:"state" validate:"required,au_state"`
}

type CompanyRegistrationForm struct {
	CompanyDetails   CompanyDetails `json:"companyDetails"`
	RegisteredOffice Address        `json:"registeredOffice"`
	Directors        []Director     `json:"directors" validate:"required,min=1,dive"`
	Shareholders     Shareholders   `json:"shareholders"`
	ABNApplication   *bool          `json:"abnApplication,omitempty"`
}

type TrusteeCompany struct {
	ProposedName string `json:"proposedName" validate:"required"`
	State        string `json:"state" validate:"required,au_state"`
}

type Registrations struct {
	ABN *bool `json:"abn,omitempty"`
	TFN *bool `json:"tfn,omitempty"`
	GST *bool `json:"gst,omitempty"`
}

type DiscretionaryBundleForm struct {
	TrustDetails   TrustDetails   `json:"trustDetails"`
	Settlor        Settlor        `json:"settlor"`
	TrusteeCompany TrusteeCompany `json:"trusteeCompany"`
	Directors      []Director     `json:"directors" validate:"required,min=1,dive"`
	Beneficiaries  Beneficiaries  `json:"beneficiaries"`
	Appointer      Party          `json:"appointer"`
	Registrations  Registrations  `json:"registrations"`
}

type SMSFDetails struct {
	FundName          string `json:"fundName" validate:"required"`
	EstablishmentDate string `json:"establishmentDate" validate:"required"`
	State             string `json:"state" validate:"required,au_state"`
}

type SMSFMember struct {
	FirstName   string  `json:"firstName" validate:"required"`
	LastName    string  `json:"lastName" validate:"required"`
	DateOfBirth string  `json:"dateOfBirth" validate:"required"`
	Address     Address `json:"address"`
	Email       string  `json:"email" validate:"required,email"`
	Phone       string  `json:"phone" validate:"required"`
	TFN         string  `json:"tfn,omitempty"`
}

type SMSFBundleForm struct {
	SMSFDetails    SMSFDetails    `json:"smsfDetails"`
	Members        []SMSFMember   `json:"members" validate:"required,min=1,max=6,dive"`
	TrusteeCompany TrusteeCompany `json:"trusteeCompany"`
	Directors      []Director     `json:"directors" validate:"required,min=1,dive"`
}
