package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProducerProfile is the public face of a producer: where they are, how to
// reach them and an optional photo. TaxID (CPF) is optional and never public.
type ProducerProfile struct {
	UserID    string       `json:"userId"`
	TaxID     string       `json:"taxId,omitempty"`
	Bio       string       `json:"bio,omitempty"`
	Photo     *DocumentRef `json:"photo,omitempty"`
	City      string       `json:"city,omitempty"`
	State     string       `json:"state,omitempty"`
	Zip       string       `json:"zip,omitempty"`
	WhatsApp  string       `json:"whatsapp,omitempty"`
	Instagram string       `json:"instagram,omitempty"`
	Facebook  string       `json:"facebook,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Owner implements authz.Owned.
func (p *ProducerProfile) Owner() string { return p.UserID }

// Kind implements authz.Owned.
func (p *ProducerProfile) Kind() string { return "producer_profile" }

// Key implements authz.Owned.
func (p *ProducerProfile) Key() string { return p.UserID }

// Public returns a copy without the tax id.
func (p *ProducerProfile) Public() *ProducerProfile {
	cp := *p
	cp.TaxID = ""
	return &cp
}

// ProducerProfileRequest carries the form fields of PUT /v1/producer/profile.
type ProducerProfileRequest struct {
	TaxID     string `json:"taxId"`
	Bio       string `json:"bio"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	WhatsApp  string `json:"whatsapp"`
	Instagram string `json:"instagram"`
	Facebook  string `json:"facebook"`
}

// Validate trims every field, normalizes the CPF and the state code and
// reports all failing fields at once.
func (r *ProducerProfileRequest) Validate() error {
	for _, f := range []*string{&r.TaxID, &r.Bio, &r.City, &r.State, &r.Zip, &r.WhatsApp, &r.Instagram, &r.Facebook} {
		*f = strings.TrimSpace(*f)
	}
	r.State = strings.ToUpper(r.State)

	fields := map[string]string{}
	if r.TaxID != "" {
		cpf, err := ValidateCPF(r.TaxID)
		var ve *ErrValidation
		if errors.As(err, &ve) {
			fields["taxId"] = ve.Message
		}
		r.TaxID = cpf
	}
	if r.State != "" && len(r.State) != 2 {
		fields["state"] = "UF deve ter 2 letras"
	}
	if len(r.Zip) > 9 {
		fields["zip"] = "CEP inválido"
	}
	if len(r.WhatsApp) > 20 {
		fields["whatsapp"] = "telefone muito longo"
	}
	if len(fields) > 0 {
		return &ErrValidation{Fields: fields}
	}
	return nil
}

// FormatCPF renders 11 digits as 000.000.000-00.
func FormatCPF(s string) string {
	d := NormalizeCNPJ(s)
	if len(d) != 11 {
		return s
	}
	return fmt.Sprintf("%s.%s.%s-%s", d[:3], d[3:6], d[6:9], d[9:11])
}

// ValidateCPF normalizes s and checks length and both check digits.
func ValidateCPF(s string) (string, error) {
	d := NormalizeCNPJ(s)
	if len(d) != 11 {
		return "", &ErrValidation{Field: "taxId", Message: "CPF deve ter 11 dígitos"}
	}
	if strings.Count(d, d[:1]) == 11 {
		return "", &ErrValidation{Field: "taxId", Message: "CPF inválido"}
	}
	if cpfDigit(d[:9]) != d[9] || cpfDigit(d[:10]) != d[10] {
		return "", &ErrValidation{Field: "taxId", Message: "CPF inválido"}
	}
	return d, nil
}

func cpfDigit(base string) byte {
	sum := 0
	weight := len(base) + 1
	for i := 0; i < len(base); i++ {
		sum += int(base[i]-'0') * weight
		weight--
	}
	r := (sum * 10) % 11
	if r == 10 {
		r = 0
	}
	return byte('0' + r)
}
