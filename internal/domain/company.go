package domain

import (
	"fmt"
	"strings"
	"time"
)

// VerificationState is the admin verification state of a company profile.
type VerificationState string

const (
	VerificationPending  VerificationState = "pending"
	VerificationVerified VerificationState = "verified"
	VerificationRejected VerificationState = "rejected"
)

// CompanyDocumentKinds are the three documents every company must upload, in slot order.
var CompanyDocumentKinds = []string{"articlesOfIncorporation", "cnpjCard", "operatingPermit"}

// CompanyProfile is the buyer-side profile attached to a company user.
type CompanyProfile struct {
	UserID            string            `json:"userId"`
	TaxID             string            `json:"taxId"`
	LegalName         string            `json:"legalName"`
	TradeName         string            `json:"tradeName,omitempty"`
	Address           string            `json:"address,omitempty"`
	City              string            `json:"city,omitempty"`
	State             string            `json:"state,omitempty"`
	Zip               string            `json:"zip,omitempty"`
	Phone             string            `json:"phone,omitempty"`
	VerificationState VerificationState `json:"verificationState"`
	RequiredDocuments []DocumentRef     `json:"requiredDocuments"`
	RegistryStatus    string            `json:"registryStatus,omitempty"`
	RegistryWarning   string            `json:"registryWarning,omitempty"`
	VerifiedAt        *time.Time        `json:"verifiedAt,omitempty"`
	VerifiedByAdminID *string           `json:"verifiedByAdminId,omitempty"`
	VerificationNotes string            `json:"verificationNotes,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// Owner implements authz.Owned.
func (c *CompanyProfile) Owner() string { return c.UserID }

// Kind implements authz.Owned.
func (c *CompanyProfile) Kind() string { return "company_profile" }

// Key implements authz.Owned.
func (c *CompanyProfile) Key() string { return c.UserID }

// CanPurchase reports whether the company may check out.
func (c *CompanyProfile) CanPurchase() bool {
	return c != nil && c.VerificationState == VerificationVerified
}

// CompanyProfileRequest carries the form fields of POST /v1/company/profile.
type CompanyProfileRequest struct {
	TaxID     string `json:"taxId"`
	LegalName string `json:"legalName"`
	TradeName string `json:"tradeName"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Phone     string `json:"phone"`
}

// VerifyCompanyRequest is the body for POST /v1/admin/companies/{userId}/verify.
type VerifyCompanyRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes,omitempty"`
}

// RegistryCompany is what the external CNPJ registry returns.
type RegistryCompany struct {
	TaxID     string `json:"taxId"`
	LegalName string `json:"legalName"`
	TradeName string `json:"tradeName,omitempty"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Status    string `json:"status"`
}

// Active reports whether the registry considers the company active.
func (r *RegistryCompany) Active() bool {
	s := strings.ToLower(strings.TrimSpace(r.Status))
	return s == "ativa" || s == "active"
}

// NormalizeCNPJ strips punctuation, keeping digits only.
func NormalizeCNPJ(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// FormatCNPJ renders 14 digits as 00.000.000/0000-00.
func FormatCNPJ(s string) string {
	d := NormalizeCNPJ(s)
	if len(d) != 14 {
		return s
	}
	return fmt.Sprintf("%s.%s.%s/%s-%s", d[:2], d[2:5], d[5:8], d[8:12], d[12:14])
}

// ValidateCNPJ normalizes s and checks length and both check digits.
func ValidateCNPJ(s string) (string, error) {
	d := NormalizeCNPJ(s)
	if len(d) != 14 {
		return "", &ErrValidation{Field: "taxId", Message: "CNPJ deve ter 14 dígitos"}
	}
	if strings.Count(d, d[:1]) == 14 {
		return "", &ErrValidation{Field: "taxId", Message: "CNPJ inválido"}
	}
	if cnpjDigit(d[:12]) != d[12] || cnpjDigit(d[:13]) != d[13] {
		return "", &ErrValidation{Field: "taxId", Message: "CNPJ inválido"}
	}
	return d, nil
}

func cnpjDigit(base string) byte {
	weight := len(base) - 7
	sum := 0
	for i := 0; i < len(base); i++ {
		sum += int(base[i]-'0') * weight
		weight--
		if weight < 2 {
			weight = 9
		}
	}
	r := sum % 11
	if r < 2 {
		return '0'
	}
	return byte('0' + 11 - r)
}
