package domain

import (
	"strings"
	"time"
)

// CertificationState is the lifecycle state of a certification request.
// pending is the only non-terminal state.
type CertificationState string

const (
	CertPending  CertificationState = "pending"
	CertApproved CertificationState = "approved"
	CertRejected CertificationState = "rejected"
)

// MaxCertificationDocuments is the number of document slots on a certification.
const MaxCertificationDocuments = 3

// ParseCertificationState maps canonical and legacy tokens. Older data used both
// "reprovado" and "rejeitado" for the rejected state.
func ParseCertificationState(s string) (CertificationState, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "pendente":
		return CertPending, true
	case "approved", "aprovado":
		return CertApproved, true
	case "rejected", "reprovado", "rejeitado":
		return CertRejected, true
	}
	return "", false
}

// Terminal reports whether no further transition is allowed.
func (s CertificationState) Terminal() bool {
	return s == CertApproved || s == CertRejected
}

// Decision is an admin's verdict on a pending certification.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision accepts "approve"/"reject" and the legacy button values.
func ParseDecision(s string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "aprovar":
		return DecisionApprove, true
	case "reject", "rejeitar", "reprovar":
		return DecisionReject, true
	}
	return "", false
}

// TargetState is the state a pending certification moves to under d.
func (d Decision) TargetState() CertificationState {
	if d == DecisionApprove {
		return CertApproved
	}
	return CertRejected
}

// Certification is a producer's self-declaration for one product.
type Certification struct {
	ID                string             `json:"id"`
	ProductID         string             `json:"productId"`
	ProductName       string             `json:"productName,omitempty"`
	ProductOwnerID    string             `json:"productOwnerId"`
	SubmittedText     string             `json:"submittedText"`
	Documents         []DocumentRef      `json:"documents"`
	State             CertificationState `json:"state"`
	SubmittedAt       time.Time          `json:"submittedAt"`
	ResolvedAt        *time.Time         `json:"resolvedAt,omitempty"`
	ResolvedByAdminID *string            `json:"resolvedByAdminId,omitempty"`
	AdminNotes        string             `json:"adminNotes,omitempty"`
}

// Owner implements authz.Owned; a certification belongs to its product's owner.
func (c *Certification) Owner() string { return c.ProductOwnerID }

// Kind implements authz.Owned.
func (c *Certification) Kind() string { return "certification" }

// Key implements authz.Owned.
func (c *Certification) Key() string { return c.ID }

// Resolution is the data written when a pending certification is decided.
type Resolution struct {
	CertificationID string
	State           CertificationState
	AdminID         string
	Notes           string
	ResolvedAt      time.Time
}

// ValidateSubmission enforces the "text or at least one document" rule and the
// document slot limit.
func ValidateSubmission(text string, documentCount int) error {
	if documentCount > MaxCertificationDocuments {
		return &ErrValidation{Field: "documents", Message: "no máximo 3 documentos por certificação"}
	}
	if strings.TrimSpace(text) == "" && documentCount == 0 {
		return &ErrValidation{Field: "submittedText", Message: "informe o texto da autodeclaração ou envie ao menos um documento"}
	}
	return nil
}

// ResolveRequest is the body for POST /v1/admin/certifications/{id}/resolve.
type ResolveRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes,omitempty"`
}

// CertificationCounts backs the dashboards.
type CertificationCounts struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}
