package documents

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/longle289/TrustAustralia/forms"
	"github.com/longle289/TrustAustralia/models"
)

var ErrUnsupportedProduct = errors.New("no document template for product")

// Renderer turns a validated form into a document.
type Renderer interface {
	Render(pt models.ProductType, form interface{}) ([]byte, error)
}

// Supports reports whether a document can be generated for pt. The other
// products are prepared by hand.
func Supports(pt models.ProductType) bool {
	return pt == models.ProductDiscretionary || pt == models.ProductUnit
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Filename is the download name for a trust deed.
func Filename(trustName string) string {
	return unsafeFilenameChars.ReplaceAllString(trustName, "_") + "_Trust_Deed.pdf"
}

// PDFRenderer lays out trust deeds as A4 PDFs.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) Render(pt models.ProductType, form interface{}) ([]byte, error) {
	switch f := form.(type) {
	case *forms.DiscretionaryTrustForm:
		if pt != models.ProductDiscretionary {
			break
		}
		return r.write(f.TrustDetails, "DISCRETIONARY TRUST DEED", func(d *deed) {
			discretionaryBody(d, f)
		})
	case *forms.UnitTrustForm:
		if pt != models.ProductUnit {
			break
		}
		return r.write(f.TrustDetails, "UNIT TRUST DEED", func(d *deed) {
			unitBody(d, f)
		})
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedProduct, pt)
}

func (r *PDFRenderer) write(td forms.TrustDetails, title string, body func(*deed)) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle(td.TrustName+" "+strings.ToLower(title), true)
	pdf.SetAuthor("Trust Australia", true)

	d := &deed{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, d.tr(fmt.Sprintf("%s - Page %d", td.TrustName, pdf.PageNo())), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	d.title(title)
	d.centered(td.TrustName)
	d.centered(fmt.Sprintf("Established %s under the laws of %s", td.EstablishmentDate, td.State))
	d.gap()
	body(d)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func discretionaryBody(d *deed, f *forms.DiscretionaryTrustForm) {
	d.heading("1. Parties")
	d.settlor(f.Settlor)
	d.party("Trustee", f.Trustee)
	d.party("Appointor", f.Appointer)

	d.heading("2. Beneficiaries")
	d.para("The Primary Beneficiaries are:")
	for _, p := range f.Beneficiaries.PrimaryBeneficiaries {
		d.bullet(fmt.Sprintf("%s %s, %s", p.FirstName, p.LastName, formatAddress(p.Address)))
	}
	classes := []struct {
		on   *bool
		name string
	}{
		{f.Beneficiaries.IncludeSpouses, "spouses of a Primary Beneficiary"},
		{f.Beneficiaries.IncludeChildren, "children of a Primary Beneficiary"},
		{f.Beneficiaries.IncludeGrandchildren, "grandchildren of a Primary Beneficiary"},
		{f.Beneficiaries.IncludeRelatedCompanies, "companies in which a Beneficiary holds shares"},
		{f.Beneficiaries.IncludeRelatedTrusts, "trusts under which a Beneficiary may benefit"},
	}
	d.para("The General Beneficiaries include:")
	for _, c := range classes {
		if forms.Includes(c.on) {
			d.bullet(c.name)
		}
	}

	d.heading("3. Distribution of income and capital")
	d.para("The Trustee may, in its absolute discretion, pay or apply the net income and capital of the Trust Fund " +
		"to or for the benefit of any one or more of the Beneficiaries, in such proportions as the Trustee determines.")
	d.para("Any income not distributed by the end of an accounting period is held for the Default Beneficiaries, " +
		"being the Primary Beneficiaries in equal shares.")

	d.heading("4. Appointor")
	d.para(fmt.Sprintf("%s is the Appointor and may remove and appoint trustees by notice in writing.", f.Appointer.DisplayName()))

	commonClauses(d)
	d.signatures(settlorName(f.Settlor), f.Trustee.DisplayName())
}

func unitBody(d *deed, f *forms.UnitTrustForm) {
	d.heading("1. Parties")
	d.settlor(f.Settlor)
	d.party("Trustee", f.Trustee)
	d.party("Appointor", f.Appointer)

	d.heading("2. Units")
	total := f.UnitHolders.TotalUnits
	if total <= 0 {
		for _, h := range f.UnitHolders.Holders {
			total += h.Units
		}
	}
	d.para(fmt.Sprintf("The beneficial interest in the Trust Fund is divided into %s units.", formatUnits(total)))
	for _, h := range f.UnitHolders.Holders {
		share := 0.0
		if total > 0 {
			share = h.Units / total * 100
		}
		d.bullet(fmt.Sprintf("%s: %s units (%.2f%%)", h.Holder.DisplayName(), formatUnits(h.Units), share))
	}

	d.heading("3. Entitlement")
	d.para("Each unit confers an equal and fixed entitlement to the net income and capital of the Trust Fund. " +
		"The Trustee must distribute the net income of each accounting period to the Unit Holders in proportion to their units.")

	d.heading("4. Transfer and redemption")
	d.para("Units may be transferred or redeemed only with the written consent of the Trustee and of Unit Holders " +
		"holding a majority of the units on issue.")

	commonClauses(d)
	d.signatures(settlorName(f.Settlor), f.Trustee.DisplayName())
}

func commonClauses(d *deed) {
	d.heading("5. Powers of the Trustee")
	d.para("The Trustee has all the powers of a natural person and of an absolute owner of the Trust Fund, " +
		"including power to invest, borrow, lend and enter into any contract.")
	d.heading("6. Vesting")
	d.para("The Trust vests on the day before the eightieth anniversary of its establishment, or any earlier day " +
		"the Trustee appoints.")
	d.heading("7. Governing law")
	d.para("This deed is governed by the laws of the State or Territory named above.")
}

func settlorName(s forms.Settlor) string {
	return s.FirstName + " " + s.LastName
}

func formatAddress(a forms.Address) string {
	return fmt.Sprintf("%s, %s %s %s", a.Street, a.Suburb, a.State, a.Postcode)
}

func formatUnits(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

type deed struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (d *deed) title(s string) {
	d.pdf.SetFont("Helvetica", "B", 18)
	d.pdf.CellFormat(0, 12, d.tr(s), "", 1, "C", false, 0, "")
}

func (d *deed) centered(s string) {
	d.pdf.SetFont("Helvetica", "", 12)
	d.pdf.CellFormat(0, 8, d.tr(s), "", 1, "C", false, 0, "")
}

func (d *deed) heading(s string) {
	d.pdf.Ln(4)
	d.pdf.SetFont("Helvetica", "B", 12)
	d.pdf.CellFormat(0, 8, d.tr(s), "", 1, "L", false, 0, "")
}

func (d *deed) para(s string) {
	d.pdf.SetFont("Helvetica", "", 10)
	d.pdf.MultiCell(0, 5, d.tr(s), "", "J", false)
	d.pdf.Ln(2)
}

func (d *deed) bullet(s string) {
	d.pdf.SetFont("Helvetica", "", 10)
	d.pdf.SetX(26)
	d.pdf.MultiCell(0, 5, d.tr("- "+s), "", "L", false)
}

func (d *deed) gap() {
	d.pdf.Ln(6)
}

func (d *deed) settlor(s forms.Settlor) {
	d.para(fmt.Sprintf("Settlor: %s of %s, who settles the sum of %s on the Trustee.",
		settlorName(s), formatAddress(s.Address), s.SettlementSum))
}

func (d *deed) party(role string, p forms.Party) {
	var addr forms.Address
	switch {
	case p.Type == forms.PartyCompany && p.Company != nil:
		d.para(fmt.Sprintf("%s: %s (ACN %s) of %s", role, p.Company.Name, p.Company.ACN, formatAddress(p.Company.Address)))
		return
	case p.Individual != nil:
		addr = p.Individual.Address
	}
	d.para(fmt.Sprintf("%s: %s of %s", role, p.DisplayName(), formatAddress(addr)))
}

func (d *deed) signatures(settlor, trustee string) {
	d.pdf.AddPage()
	d.heading("Executed as a deed")
	for _, who := range []string{"Settlor: " + settlor, "Trustee: " + trustee} {
		d.pdf.Ln(16)
		d.pdf.SetFont("Helvetica", "", 10)
		d.pdf.CellFormat(90, 5, "", "B", 1, "L", false, 0, "")
		d.pdf.CellFormat(90, 5, d.tr(who), "", 1, "L", false, 0, "")
		d.pdf.CellFormat(90, 5, "Date: ____________________", "", 1, "L", false, 0, "")
	}
}
