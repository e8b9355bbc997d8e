// Package cbom renders decoded certificates and keys as a CycloneDX 1.6
// BOM of cryptographic assets.
package cbom

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"runtime/debug"
	"strings"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"

	"github.com/CZERTAINLY/Weaver/internal/model"
)

var version string

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		version = "unknown"
	} else {
		version = info.Main.Version
	}
}

const (
	CertificateSourceFormat  = "czertainly:component:certificate:source_format"
	CertificateBase64Content = "czertainly:component:certificate:base64_content"
	PrivateKeyContent        = "czertainly:component:private_key:content"
	PrivateKeyEncrypted      = "czertainly:component:private_key:encrypted"
)

const refUnknownAlgorithm cdx.BOMReference = "crypto/algorithm/unknown@unknown"

// Signature algorithms keyed by the outer signatureAlgorithm OID. The
// record model carries the dotted OID regardless of how the certificate
// was decoded, so PQC algorithms unknown to crypto/x509 resolve too.
var sigAlgRef = map[string]cdx.BOMReference{
	"1.2.840.113549.1.1.4":   "crypto/algorithm/md5-rsa@1.2.840.113549.1.1.4",
	"1.2.840.113549.1.1.5":   "crypto/algorithm/sha-1-rsa@1.2.840.113549.1.1.5",
	"1.2.840.113549.1.1.11":  "crypto/algorithm/sha-256-rsa@1.2.840.113549.1.1.11",
	"1.2.840.113549.1.1.12":  "crypto/algorithm/sha-384-rsa@1.2.840.113549.1.1.12",
	"1.2.840.113549.1.1.13":  "crypto/algorithm/sha-512-rsa@1.2.840.113549.1.1.13",
	"1.2.840.113549.1.1.10":  "crypto/algorithm/rsassa-pss@1.2.840.113549.1.1.10",
	"1.2.840.10040.4.3":      "crypto/algorithm/sha-1-dsa@1.2.840.10040.4.3",
	"2.16.840.1.101.3.4.3.2": "crypto/algorithm/sha-256-dsa@2.16.840.1.101.3.4.3.2",
	"1.2.840.10045.4.1":      "crypto/algorithm/sha-1-ecdsa@1.2.840.10045.4.1",
	"1.2.840.10045.4.3.2":    "crypto/algorithm/sha-256-ecdsa@1.2.840.10045.4.3.2",
	"1.2.840.10045.4.3.3":    "crypto/algorithm/sha-384-ecdsa@1.2.840.10045.4.3.3",
	"1.2.840.10045.4.3.4":    "crypto/algorithm/sha-512-ecdsa@1.2.840.10045.4.3.4",
	"1.3.101.112":            "crypto/algorithm/ed25519@1.3.101.112",

	// ML-DSA (FIPS 204)
	"2.16.840.1.101.3.4.3.17": "crypto/algorithm/ml-dsa-44@2.16.840.1.101.3.4.3.17",
	"2.16.840.1.101.3.4.3.18": "crypto/algorithm/ml-dsa-65@2.16.840.1.101.3.4.3.18",
	"2.16.840.1.101.3.4.3.19": "crypto/algorithm/ml-dsa-87@2.16.840.1.101.3.4.3.19",

	// SLH-DSA (FIPS 205)
	"2.16.840.1.101.3.4.3.20": "crypto/algorithm/slh-dsa-sha2-128s@2.16.840.1.101.3.4.3.20",
	"2.16.840.1.101.3.4.3.21": "crypto/algorithm/slh-dsa-sha2-128f@2.16.840.1.101.3.4.3.21",
	"2.16.840.1.101.3.4.3.22": "crypto/algorithm/slh-dsa-sha2-192s@2.16.840.1.101.3.4.3.22",
	"2.16.840.1.101.3.4.3.23": "crypto/algorithm/slh-dsa-sha2-192f@2.16.840.1.101.3.4.3.23",
	"2.16.840.1.101.3.4.3.24": "crypto/algorithm/slh-dsa-sha2-256s@2.16.840.1.101.3.4.3.24",
	"2.16.840.1.101.3.4.3.25": "crypto/algorithm/slh-dsa-sha2-256f@2.16.840.1.101.3.4.3.25",
	"2.16.840.1.101.3.4.3.26": "crypto/algorithm/slh-dsa-shake-128s@2.16.840.1.101.3.4.3.26",
	"2.16.840.1.101.3.4.3.27": "crypto/algorithm/slh-dsa-shake-128f@2.16.840.1.101.3.4.3.27",
	"2.16.840.1.101.3.4.3.28": "crypto/algorithm/slh-dsa-shake-192s@2.16.840.1.101.3.4.3.28",
	"2.16.840.1.101.3.4.3.29": "crypto/algorithm/slh-dsa-shake-192f@2.16.840.1.101.3.4.3.29",
	"2.16.840.1.101.3.4.3.30": "crypto/algorithm/slh-dsa-shake-256s@2.16.840.1.101.3.4.3.30",
	"2.16.840.1.101.3.4.3.31": "crypto/algorithm/slh-dsa-shake-256f@2.16.840.1.101.3.4.3.31",

	// IETF stateful hash-based signatures
	"1.2.840.113549.1.9.16.3.17": "crypto/algorithm/hss-lms-hashsig@1.2.840.113549.1.9.16.3.17",
	"1.3.6.1.5.5.7.6.34":         "crypto/algorithm/xmss-hashsig@1.3.6.1.5.5.7.6.34",
	"1.3.6.1.5.5.7.6.35":         "crypto/algorithm/xmssmt-hashsig@1.3.6.1.5.5.7.6.35",
}

// SignatureAlgorithmRef resolves a signatureAlgorithm OID into a BOM
// reference, falling back to the unknown sentinel.
func SignatureAlgorithmRef(oid string) cdx.BOMReference {
	if ref, ok := sigAlgRef[oid]; ok {
		return ref
	}
	return refUnknownAlgorithm
}

// Builder accumulates components and dependencies for a single BOM.
type Builder struct {
	components   []cdx.Component
	dependencies []cdx.Dependency
	seen         map[string]bool
}

func NewBuilder() *Builder {
	return &Builder{
		// the CycloneDX JSON schema does not allow these to be null
		components:   []cdx.Component{},
		dependencies: []cdx.Dependency{},
		seen:         map[string]bool{},
	}
}

// AppendResult adds every certificate and private key of a parse result.
// source labels the originating container format, e.g. PEM or PKCS12.
func (b *Builder) AppendResult(res *model.ParseResult, source string) *Builder {
	for i := range res.Certificates {
		b.AppendCertificate(&res.Certificates[i], source)
	}
	for i := range res.PrivateKeys {
		b.AppendKey(&res.PrivateKeys[i])
	}
	return b
}

// AppendCertificate adds one certificate component plus its signature
// algorithm component, deduplicating by BOM reference.
func (b *Builder) AppendCertificate(rec *model.CertificateRecord, source string) *Builder {
	sum := sha256.Sum256(rec.DER)
	certRef := "crypto/certificate/" + certificateName(rec) + "@" + hex.EncodeToString(sum[:8])

	algRef := SignatureAlgorithmRef(rec.SignatureAlgorithm)
	b.appendAlgorithm(algRef, rec.SignatureAlgorithm)

	if b.seen[certRef] {
		return b
	}
	b.seen[certRef] = true

	b.components = append(b.components, cdx.Component{
		BOMRef:      certRef,
		Type:        cdx.ComponentTypeCryptographicAsset,
		Name:        certificateName(rec),
		Description: "Public key (x509)",
		Version:     rec.SerialNumber,
		CryptoProperties: &cdx.CryptoProperties{
			AssetType: cdx.CryptoAssetTypeCertificate,
			CertificateProperties: &cdx.CertificateProperties{
				SubjectName:           rec.Subject.String(),
				IssuerName:            rec.Issuer.String(),
				NotValidBefore:        rec.NotBefore.Format(time.RFC3339),
				NotValidAfter:         rec.NotAfter.Format(time.RFC3339),
				CertificateFormat:     "X.509",
				SignatureAlgorithmRef: algRef,
			},
			RelatedCryptoMaterialProperties: &cdx.RelatedCryptoMaterialProperties{
				ID:             rec.SerialNumber,
				State:          certificateState(rec, time.Now()),
				CreationDate:   rec.NotBefore.Format(time.RFC3339),
				ActivationDate: rec.NotBefore.Format(time.RFC3339),
				ExpirationDate: rec.NotAfter.Format(time.RFC3339),
			},
		},
		Properties: &[]cdx.Property{
			{Name: CertificateSourceFormat, Value: source},
			{Name: CertificateBase64Content, Value: base64.StdEncoding.EncodeToString(rec.DER)},
		},
	})
	b.dependencies = append(b.dependencies, cdx.Dependency{
		Ref:          certRef,
		Dependencies: &[]string{string(algRef)},
	})
	return b
}

// AppendKey adds a private key component. Encrypted keys carry no
// decoded material, only the PEM as found.
func (b *Builder) AppendKey(key *model.PrivateKeyRecord) *Builder {
	sum := sha256.Sum256([]byte(key.PEM))
	ref := "crypto/key/private@" + hex.EncodeToString(sum[:8])
	if b.seen[ref] {
		return b
	}
	b.seen[ref] = true

	encrypted := "false"
	if key.Encrypted {
		encrypted = "true"
	}
	b.components = append(b.components, cdx.Component{
		BOMRef: ref,
		Type:   cdx.ComponentTypeCryptographicAsset,
		Name:   "private-key",
		CryptoProperties: &cdx.CryptoProperties{
			AssetType: cdx.CryptoAssetTypeRelatedCryptoMaterial,
			RelatedCryptoMaterialProperties: &cdx.RelatedCryptoMaterialProperties{
				Type: cdx.RelatedCryptoMaterialTypePrivateKey,
			},
		},
		Properties: &[]cdx.Property{
			{Name: PrivateKeyContent, Value: key.PEM},
			{Name: PrivateKeyEncrypted, Value: encrypted},
		},
	})
	return b
}

func (b *Builder) appendAlgorithm(ref cdx.BOMReference, oid string) {
	if b.seen[string(ref)] {
		return
	}
	b.seen[string(ref)] = true

	name, _, _ := strings.Cut(strings.TrimPrefix(string(ref), "crypto/algorithm/"), "@")
	if oid == "" {
		oid = "unknown"
	}
	b.components = append(b.components, cdx.Component{
		BOMRef:  string(ref),
		Type:    cdx.ComponentTypeCryptographicAsset,
		Name:    name,
		Version: oid,
		CryptoProperties: &cdx.CryptoProperties{
			AssetType: cdx.CryptoAssetTypeAlgorithm,
			AlgorithmProperties: &cdx.CryptoAlgorithmProperties{
				Primitive:       cdx.CryptoPrimitiveSignature,
				CryptoFunctions: &[]cdx.CryptoFunction{cdx.CryptoFunctionSign, cdx.CryptoFunctionVerify},
			},
			OID: oid,
		},
	})
}

// BOM assembles the accumulated components into a CycloneDX document.
func (b *Builder) BOM() cdx.BOM {
	return cdx.BOM{
		JSONSchema:   "https://cyclonedx.org/schema/bom-1.6.schema.json",
		BOMFormat:    "CycloneDX",
		SpecVersion:  cdx.SpecVersion1_6,
		SerialNumber: "urn:uuid:" + uuid.New().String(),
		Version:      1,
		Metadata: &cdx.Metadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Lifecycles: &[]cdx.Lifecycle{
				{Phase: "operations"},
			},
			Component: &cdx.Component{
				Type:    "application",
				Name:    "Weaver",
				Version: version,
				Manufacturer: &cdx.OrganizationalEntity{
					Name:    "CZERTAINLY",
					Address: &cdx.PostalAddress{},
					URL: &[]string{
						"https://www.czertainly.com",
					},
				},
			},
		},
		Components:   &b.components,
		Dependencies: &b.dependencies,
	}
}

// AsJSON encodes the BOM as pretty-printed JSON.
func (b *Builder) AsJSON(w io.Writer) error {
	bom := b.BOM()
	return cdx.NewBOMEncoder(w, cdx.BOMFileFormatJSON).SetPretty(true).Encode(&bom)
}

func certificateName(rec *model.CertificateRecord) string {
	if rec.SubjectCommonName != model.UnknownCommonName {
		return rec.SubjectCommonName
	}
	if s := rec.Subject.String(); s != "" {
		return s
	}
	return "Certificate " + rec.SerialNumber
}

func certificateState(rec *model.CertificateRecord, now time.Time) cdx.CryptoKeyState {
	switch {
	case now.Before(rec.NotBefore):
		return cdx.CryptoKeyStatePreActivation
	case now.After(rec.NotAfter):
		return cdx.CryptoKeyStateDeactivated
	default:
		return cdx.CryptoKeyStateActive
	}
}
