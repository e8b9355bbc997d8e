package certdec_test

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// genCert generates a certificate DER, self-signed unless a parent is given.
func genCert(t *testing.T, templ *x509.Certificate, parent *x509.Certificate, parentKey crypto.Signer) ([]byte, crypto.Signer) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	if parent == nil {
		parent = templ
		parentKey = key
	}
	der, err := x509.CreateCertificate(rand.Reader, templ, parent, &key.PublicKey, parentKey)
	require.NoError(t, err)
	return der, key
}

func caTemplate(cn string) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"Weaver Test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
}

func leafTemplate(cn string) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano() + 1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
}

func genRSACert(t *testing.T, cn string) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	templ := leafTemplate(cn)
	der, err := x509.CreateCertificate(rand.Reader, templ, templ, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

// The structures below let tests hand-craft certificates the standard
// library refuses, e.g. with an out-of-range version or an unknown
// public-key algorithm.

type rawValidity struct {
	NotBefore, NotAfter time.Time
}

type rawExtension struct {
	OID      asn1.ObjectIdentifier
	Critical bool `asn1:"optional"`
	Value    []byte
}

type rawTBS struct {
	Version    int `asn1:"optional,explicit,tag:0"`
	Serial     *big.Int
	SigAlg     pkix.AlgorithmIdentifier
	Issuer     asn1.RawValue
	Validity   rawValidity
	Subject    asn1.RawValue
	SPKI       asn1.RawValue
	Extensions []rawExtension `asn1:"optional,explicit,tag:3"`
}

type rawCertificate struct {
	TBS    rawTBS
	SigAlg pkix.AlgorithmIdentifier
	Sig    asn1.BitString
}

func marshalName(t *testing.T, name pkix.Name) asn1.RawValue {
	t.Helper()
	b, err := asn1.Marshal(name.ToRDNSequence())
	require.NoError(t, err)
	return asn1.RawValue{FullBytes: b}
}

type rawSPKI struct {
	Alg pkix.AlgorithmIdentifier
	Key asn1.BitString
}

func marshalSPKI(t *testing.T, alg asn1.ObjectIdentifier) asn1.RawValue {
	t.Helper()
	b, err := asn1.Marshal(rawSPKI{
		Alg: pkix.AlgorithmIdentifier{Algorithm: alg},
		Key: asn1.BitString{Bytes: []byte{0xAA, 0xBB, 0xCC}, BitLength: 24},
	})
	require.NoError(t, err)
	return asn1.RawValue{FullBytes: b}
}

type rawBasicConstraints struct {
	IsCA bool
}

// craftCertificate builds a syntactically valid certificate DER with full
// control over version and SPKI algorithm. The signature is garbage; nothing
// here verifies signatures.
func craftCertificate(t *testing.T, version int, subject, issuer pkix.Name, spkiAlg asn1.ObjectIdentifier, exts []rawExtension) []byte {
	t.Helper()
	sigOID := asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	der, err := asn1.Marshal(rawCertificate{
		TBS: rawTBS{
			Version: version,
			Serial:  big.NewInt(0x1f2e3d),
			SigAlg:  pkix.AlgorithmIdentifier{Algorithm: sigOID},
			Issuer:  marshalName(t, issuer),
			Validity: rawValidity{
				NotBefore: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
				NotAfter:  time.Date(2034, 6, 1, 0, 0, 0, 0, time.UTC),
			},
			Subject:    marshalName(t, subject),
			SPKI:       marshalSPKI(t, spkiAlg),
			Extensions: exts,
		},
		SigAlg: pkix.AlgorithmIdentifier{Algorithm: sigOID},
		Sig:    asn1.BitString{Bytes: []byte{0x00}, BitLength: 8},
	})
	require.NoError(t, err)
	return der
}

func basicConstraintsExt(t *testing.T, isCA bool, critical bool) rawExtension {
	t.Helper()
	v, err := asn1.Marshal(rawBasicConstraints{IsCA: isCA})
	require.NoError(t, err)
	return rawExtension{
		OID:      asn1.ObjectIdentifier{2, 5, 29, 19},
		Critical: critical,
		Value:    v,
	}
}
