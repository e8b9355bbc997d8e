package model

import (
	"time"
)

// UnknownCommonName is reported when a subject or issuer carries no CN
// attribute.
const UnknownCommonName = "Unknown"

// OIDBasicConstraints identifies the X.509 BasicConstraints extension.
const OIDBasicConstraints = "2.5.29.19"

// DNAttribute is a single naming attribute of a distinguished name.
type DNAttribute struct {
	OID       string `json:"oid"`
	ShortName string `json:"shortName,omitempty"`
	Value     string `json:"value"`
}

// DistinguishedName is an ordered attribute sequence identifying a
// certificate subject or issuer. Ordering is significant for equality.
type DistinguishedName struct {
	Attributes []DNAttribute `json:"attributes"`
}

// Equal reports element-wise equality of two attribute sequences.
func (d DistinguishedName) Equal(other DistinguishedName) bool {
	if len(d.Attributes) != len(other.Attributes) {
		return false
	}
	for i, a := range d.Attributes {
		b := other.Attributes[i]
		if a.OID != b.OID || a.Value != b.Value {
			return false
		}
	}
	return true
}

// CommonName returns the value of the CN attribute, or UnknownCommonName
// when absent.
func (d DistinguishedName) CommonName() string {
	for _, a := range d.Attributes {
		if a.OID == "2.5.4.3" {
			return a.Value
		}
	}
	return UnknownCommonName
}

// String renders the DN as comma separated shortName=value pairs, falling
// back to the dotted OID for attributes without a short name.
func (d DistinguishedName) String() string {
	var s string
	for i, a := range d.Attributes {
		if i > 0 {
			s += ", "
		}
		name := a.ShortName
		if name == "" {
			name = a.OID
		}
		s += name + "=" + a.Value
	}
	return s
}

// BasicConstraints is the decoded payload of the BasicConstraints extension.
// An empty inner SEQUENCE means "not a CA" by omission, so IsCA defaults to
// false.
type BasicConstraints struct {
	IsCA bool `json:"isCA"`
}

// Extension is an X.509 extension. Known OIDs get a decoded variant next to
// the raw bytes; everything else is carried raw for forward compatibility.
type Extension struct {
	OID      string `json:"oid"`
	Critical bool   `json:"critical,omitempty"`
	Raw      []byte `json:"-"`

	// BasicConstraints is set iff OID is OIDBasicConstraints.
	BasicConstraints *BasicConstraints `json:"basicConstraints,omitempty"`
}

// CertificateRecord is a structured view of one decoded certificate.
// Validity is stored as decoded: an inverted interval is passed through,
// not rejected, since this engine is a viewer rather than a validator.
type CertificateRecord struct {
	Version            int               `json:"version"` // 1-based display value
	SerialNumber       string            `json:"serialNumber"`
	SignatureAlgorithm string            `json:"signatureAlgorithm"` // dotted OID
	Subject            DistinguishedName `json:"subject"`
	Issuer             DistinguishedName `json:"issuer"`
	NotBefore          time.Time         `json:"validFrom"`
	NotAfter           time.Time         `json:"validTo"`
	Extensions         []Extension       `json:"extensions,omitempty"`

	// RawSubjectPublicKeyInfo keeps the SubjectPublicKeyInfo TLV verbatim.
	// PublicKeyAlgorithm is empty when the decoder could not interpret the
	// key; the raw bytes are still available.
	RawSubjectPublicKeyInfo []byte `json:"-"`
	PublicKeyAlgorithm      string `json:"publicKeyAlgorithm,omitempty"`

	// PEM and DER are the canonical encodings the record was derived from.
	PEM string `json:"pem"`
	DER []byte `json:"-"`

	SubjectCommonName string `json:"subjectCommonName"`
	IssuerCommonName  string `json:"issuerCommonName"`
	IsCA              bool   `json:"isCA"`
	IsSelfSigned      bool   `json:"isSelfSigned"`
}

// PrivateKeyRecord is a private key in PEM form. Key material is never
// decoded, the encryption status is reported as found.
type PrivateKeyRecord struct {
	PEM       string `json:"pem"`
	Encrypted bool   `json:"encrypted"`
}

// ParseResult is what one decode call hands back to the caller.
type ParseResult struct {
	Certificates  []CertificateRecord `json:"certificates"`
	PrivateKeys   []PrivateKeyRecord  `json:"privateKeys"`
	NeedsPassword bool                `json:"needsPassword"`
	Warnings      []string            `json:"warnings,omitempty"`
}
