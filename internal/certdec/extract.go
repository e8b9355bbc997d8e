package certdec

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/CZERTAINLY/Weaver/internal/asn1tree"
	"github.com/CZERTAINLY/Weaver/internal/model"
)

// FieldExtractor turns DER certificate bytes into a partially populated
// record. Derived fields (PEM, common names, isCA, isSelfSigned) are filled
// in by the Decoder afterwards.
type FieldExtractor interface {
	Extract(der []byte) (*model.CertificateRecord, error)
}

// attribute type OIDs with conventional short names
var attrShortNames = map[string]string{
	"2.5.4.3":  "CN",
	"2.5.4.5":  "SERIALNUMBER",
	"2.5.4.6":  "C",
	"2.5.4.7":  "L",
	"2.5.4.8":  "ST",
	"2.5.4.9":  "STREET",
	"2.5.4.10": "O",
	"2.5.4.11": "OU",
	"2.5.4.17": "POSTALCODE",
}

// StandardExtractor decodes through crypto/x509 and keeps the semantic
// public key information.
func StandardExtractor() FieldExtractor { return stdExtractor{} }

// ManualExtractor walks the tbsCertificate fields positionally over the raw
// TLV tree. It never interprets SubjectPublicKeyInfo, so it accepts
// certificates whose public-key algorithm the standard decoder rejects.
func ManualExtractor() FieldExtractor { return manualExtractor{} }

type stdExtractor struct{}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type certOuter struct {
	TBSCert   asn1.RawValue
	SigAlg    algorithmIdentifier
	Signature asn1.BitString
}

func (stdExtractor) Extract(der []byte) (*model.CertificateRecord, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}

	var outer certOuter
	if _, err := asn1.Unmarshal(der, &outer); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedEncoding, err)
	}

	subject, err := nameFromRaw(cert.RawSubject)
	if err != nil {
		return nil, err
	}
	issuer, err := nameFromRaw(cert.RawIssuer)
	if err != nil {
		return nil, err
	}

	rec := &model.CertificateRecord{
		Version:                 cert.Version,
		SerialNumber:            cert.SerialNumber.Text(16),
		SignatureAlgorithm:      outer.SigAlg.Algorithm.String(),
		Subject:                 subject,
		Issuer:                  issuer,
		NotBefore:               cert.NotBefore,
		NotAfter:                cert.NotAfter,
		RawSubjectPublicKeyInfo: cert.RawSubjectPublicKeyInfo,
	}
	if cert.PublicKeyAlgorithm != x509.UnknownPublicKeyAlgorithm {
		rec.PublicKeyAlgorithm = cert.PublicKeyAlgorithm.String()
	}

	for _, ext := range cert.Extensions {
		e := model.Extension{
			OID:      ext.Id.String(),
			Critical: ext.Critical,
			Raw:      ext.Value,
		}
		if e.OID == model.OIDBasicConstraints {
			if bc, err := decodeBasicConstraints(ext.Value); err == nil {
				e.BasicConstraints = bc
			}
		}
		rec.Extensions = append(rec.Extensions, e)
	}
	return rec, nil
}

// nameFromRaw keeps the RDN sequence in encoding order; pkix.Name flattening
// would lose it.
func nameFromRaw(raw []byte) (model.DistinguishedName, error) {
	var seq pkix.RDNSequence
	if _, err := asn1.Unmarshal(raw, &seq); err != nil {
		return model.DistinguishedName{}, fmt.Errorf("%w: name: %v", model.ErrMalformedEncoding, err)
	}
	var dn model.DistinguishedName
	for _, rdn := range seq {
		for _, atv := range rdn {
			oid := atv.Type.String()
			dn.Attributes = append(dn.Attributes, model.DNAttribute{
				OID:       oid,
				ShortName: attrShortNames[oid],
				Value:     fmt.Sprint(atv.Value),
			})
		}
	}
	return dn, nil
}

type manualExtractor struct{}

func (manualExtractor) Extract(der []byte) (*model.CertificateRecord, error) {
	root, err := asn1tree.Decode(der)
	if err != nil {
		return nil, err
	}
	if !root.Constructed || len(root.Children) < 3 {
		return nil, errors.New("certificate is not a three-element SEQUENCE")
	}

	tbs := root.Children[0]
	if !tbs.Constructed {
		return nil, errors.New("tbsCertificate is primitive")
	}
	fields := tbs.Children
	idx := 0

	next := func(what string) (*asn1tree.Node, error) {
		if idx >= len(fields) {
			return nil, fmt.Errorf("tbsCertificate ends before %s", what)
		}
		n := fields[idx]
		idx++
		return n, nil
	}

	rec := &model.CertificateRecord{Version: 1}

	// The [0] EXPLICIT version wrapper is optional; look ahead at the tag
	// class instead of assuming a fixed offset.
	if len(fields) > 0 && fields[0].Class == asn1tree.ClassContextSpecific && fields[0].Tag == 0 {
		if len(fields[0].Children) != 1 {
			return nil, errors.New("version wrapper")
		}
		v, err := fields[0].Children[0].Integer()
		if err != nil {
			return nil, err
		}
		rec.Version = int(v.Int64()) + 1
		idx++
	}

	serial, err := next("serialNumber")
	if err != nil {
		return nil, err
	}
	sn, err := serial.Integer()
	if err != nil {
		return nil, err
	}
	rec.SerialNumber = sn.Text(16)

	sigAlg, err := next("signature")
	if err != nil {
		return nil, err
	}
	if len(sigAlg.Children) == 0 {
		return nil, errors.New("empty AlgorithmIdentifier")
	}
	if rec.SignatureAlgorithm, err = sigAlg.Children[0].OID(); err != nil {
		return nil, err
	}

	issuer, err := next("issuer")
	if err != nil {
		return nil, err
	}
	if rec.Issuer, err = nameFromNode(issuer); err != nil {
		return nil, err
	}

	validity, err := next("validity")
	if err != nil {
		return nil, err
	}
	if len(validity.Children) != 2 {
		return nil, errors.New("validity is not a two-element SEQUENCE")
	}
	if rec.NotBefore, err = validity.Children[0].Time(); err != nil {
		return nil, err
	}
	if rec.NotAfter, err = validity.Children[1].Time(); err != nil {
		return nil, err
	}

	subject, err := next("subject")
	if err != nil {
		return nil, err
	}
	if rec.Subject, err = nameFromNode(subject); err != nil {
		return nil, err
	}

	// SubjectPublicKeyInfo stays raw: the whole point of this extractor is
	// surviving key algorithms nothing else understands.
	spki, err := next("subjectPublicKeyInfo")
	if err != nil {
		return nil, err
	}
	rec.RawSubjectPublicKeyInfo = spki.Full

	for idx < len(fields) {
		f := fields[idx]
		idx++
		if f.Class != asn1tree.ClassContextSpecific || f.Tag != 3 {
			continue // issuerUniqueID [1] / subjectUniqueID [2]
		}
		if len(f.Children) != 1 {
			return nil, errors.New("extensions wrapper")
		}
		if rec.Extensions, err = extensionsFromNode(f.Children[0]); err != nil {
			return nil, err
		}
	}

	return rec, nil
}

func nameFromNode(n *asn1tree.Node) (model.DistinguishedName, error) {
	var dn model.DistinguishedName
	for _, rdn := range n.Children {
		for _, atv := range rdn.Children {
			if len(atv.Children) != 2 {
				return model.DistinguishedName{}, errors.New("attribute is not a pair")
			}
			oid, err := atv.Children[0].OID()
			if err != nil {
				return model.DistinguishedName{}, err
			}
			dn.Attributes = append(dn.Attributes, model.DNAttribute{
				OID:       oid,
				ShortName: attrShortNames[oid],
				Value:     atv.Children[1].Text(),
			})
		}
	}
	return dn, nil
}

func extensionsFromNode(seq *asn1tree.Node) ([]model.Extension, error) {
	var out []model.Extension
	for _, extNode := range seq.Children {
		kids := extNode.Children
		if len(kids) < 2 {
			return nil, fmt.Errorf("extension with %d fields", len(kids))
		}
		oid, err := kids[0].OID()
		if err != nil {
			return nil, err
		}
		e := model.Extension{OID: oid}

		i := 1
		if kids[i].Class == asn1tree.ClassUniversal && kids[i].Tag == asn1tree.TagBoolean {
			if e.Critical, err = kids[i].Bool(); err != nil {
				return nil, err
			}
			i++
		}
		if i >= len(kids) {
			return nil, errors.New("extension without value")
		}
		e.Raw = kids[i].Content

		if e.OID == model.OIDBasicConstraints {
			if bc, err := decodeBasicConstraints(e.Raw); err == nil {
				e.BasicConstraints = bc
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// decodeBasicConstraints decodes the extension payload one level further.
// BasicConstraints ::= SEQUENCE { cA BOOLEAN DEFAULT FALSE, pathLen ... };
// an empty SEQUENCE means not a CA by omission.
func decodeBasicConstraints(raw []byte) (*model.BasicConstraints, error) {
	n, err := asn1tree.Decode(raw)
	if err != nil {
		return nil, err
	}
	if n.Class != asn1tree.ClassUniversal || n.Tag != asn1tree.TagSequence {
		return nil, errors.New("BasicConstraints is not a SEQUENCE")
	}
	bc := &model.BasicConstraints{}
	if len(n.Children) > 0 && n.Children[0].Class == asn1tree.ClassUniversal && n.Children[0].Tag == asn1tree.TagBoolean {
		if bc.IsCA, err = n.Children[0].Bool(); err != nil {
			return nil, err
		}
	}
	return bc, nil
}
