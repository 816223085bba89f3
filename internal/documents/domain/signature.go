package domain

import (
	"strings"
	"time"
)

type SignatureStatus string

const (
	SignaturePending  SignatureStatus = "pending"
	SignatureSigned   SignatureStatus = "signed"
	SignatureDeclined SignatureStatus = "declined"
)

type Signature struct {
	SignerEmail string          `json:"signerEmail"`
	SignerName  string          `json:"signerName,omitempty"`
	Status      SignatureStatus `json:"status"`
	RequestedAt time.Time       `json:"requestedAt"`
	SignedAt    *time.Time      `json:"signedAt,omitempty"`
	IPAddress   string          `json:"ipAddress,omitempty"`
}

type Signer struct {
	Email string
	Name  string
}

// RequestSignatures seeds a pending signature per signer. A signer that
// already has a record is asked again only after declining. The document
// waits for signatures only while one is pending.
func (d *Document) RequestSignatures(signers []Signer, now time.Time) error {
	if len(signers) == 0 {
		return ErrNoSigners
	}
	for _, s := range signers {
		email := strings.ToLower(strings.TrimSpace(s.Email))
		if email == "" {
			continue
		}
		if i := d.signatureIndex(email); i >= 0 {
			if d.Signatures[i].Status == SignatureDeclined {
				d.Signatures[i].Status = SignaturePending
				d.Signatures[i].RequestedAt = now
			}
			continue
		}
		d.Signatures = append(d.Signatures, Signature{
			SignerEmail: email,
			SignerName:  strings.TrimSpace(s.Name),
			Status:      SignaturePending,
			RequestedAt: now,
		})
	}
	if d.hasPendingSignature() {
		d.Status = StatusPendingSignature
	}
	return nil
}

// RecordSignature marks the signer's pending signature as signed and reports
// whether every signer has now signed.
func (d *Document) RecordSignature(email, ip string, now time.Time) (bool, error) {
	i := d.pendingSignature(email)
	if i < 0 {
		return false, ErrSignerNotFound
	}
	signed := now
	d.Signatures[i].Status = SignatureSigned
	d.Signatures[i].SignedAt = &signed
	d.Signatures[i].IPAddress = ip

	if d.AllSigned() {
		d.Status = StatusSigned
		return true, nil
	}
	return false, nil
}

func (d *Document) DeclineSignature(email string) error {
	i := d.pendingSignature(email)
	if i < 0 {
		return ErrSignerNotFound
	}
	d.Signatures[i].Status = SignatureDeclined
	return nil
}

func (d *Document) AllSigned() bool {
	if len(d.Signatures) == 0 {
		return false
	}
	for _, s := range d.Signatures {
		if s.Status != SignatureSigned {
			return false
		}
	}
	return true
}

func (d *Document) hasPendingSignature() bool {
	for _, s := range d.Signatures {
		if s.Status == SignaturePending {
			return true
		}
	}
	return false
}

func (d *Document) pendingSignature(email string) int {
	i := d.signatureIndex(strings.ToLower(strings.TrimSpace(email)))
	if i < 0 || d.Signatures[i].Status != SignaturePending {
		return -1
	}
	return i
}

func (d *Document) signatureIndex(email string) int {
	for i, s := range d.Signatures {
		if s.SignerEmail == email {
			return i
		}
	}
	return -1
}
