package certdec_test

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"testing"

	"github.com/CZERTAINLY/Weaver/internal/certdec"
	"github.com/CZERTAINLY/Weaver/internal/model"
	"github.com/stretchr/testify/require"
)

func TestDecodeSelfSignedCA(t *testing.T) {
	t.Parallel()

	der, _ := genCert(t, caTemplate("Weaver Root CA"), nil, nil)

	dec := certdec.NewDecoder()
	rec, err := dec.Decode(t.Context(), der)
	require.NoError(t, err)

	require.Equal(t, 3, rec.Version)
	require.NotEmpty(t, rec.SerialNumber)
	require.Equal(t, "1.2.840.10045.4.3.2", rec.SignatureAlgorithm)
	require.Equal(t, "Weaver Root CA", rec.SubjectCommonName)
	require.Equal(t, "Weaver Root CA", rec.IssuerCommonName)
	require.True(t, rec.IsCA)
	require.True(t, rec.IsSelfSigned)
	require.Equal(t, "ECDSA", rec.PublicKeyAlgorithm)
	require.NotEmpty(t, rec.RawSubjectPublicKeyInfo)
	require.True(t, rec.NotBefore.Before(rec.NotAfter))

	// the record carries its canonical PEM encoding
	p, _ := pem.Decode([]byte(rec.PEM + "\n"))
	require.NotNil(t, p)
	require.Equal(t, "CERTIFICATE", p.Type)
	require.Equal(t, der, p.Bytes)

	var bc *model.BasicConstraints
	for _, e := range rec.Extensions {
		if e.OID == model.OIDBasicConstraints {
			bc = e.BasicConstraints
		}
	}
	require.NotNil(t, bc)
	require.True(t, bc.IsCA)
}

func TestDecodeLeafIssuedByCA(t *testing.T) {
	t.Parallel()

	caDER, caKey := genCert(t, caTemplate("Weaver Root CA"), nil, nil)
	ca, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)
	leafDER, _ := genCert(t, leafTemplate("www.example.com"), ca, caKey)

	dec := certdec.NewDecoder()
	rec, err := dec.Decode(t.Context(), leafDER)
	require.NoError(t, err)

	require.Equal(t, "www.example.com", rec.SubjectCommonName)
	require.Equal(t, "Weaver Root CA", rec.IssuerCommonName)
	require.False(t, rec.IsCA)
	require.False(t, rec.IsSelfSigned)
}

func TestExtractorsAgree(t *testing.T) {
	t.Parallel()

	ecdsaDER, _ := genCert(t, caTemplate("Agreement CA"), nil, nil)

	tests := []struct {
		name string
		der  []byte
	}{
		{"ecdsa ca", ecdsaDER},
		{"rsa leaf", genRSACert(t, "rsa.example.com")},
	}

	std := certdec.StandardExtractor()
	manual := certdec.ManualExtractor()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := std.Extract(tt.der)
			require.NoError(t, err)
			b, err := manual.Extract(tt.der)
			require.NoError(t, err)

			require.True(t, a.Subject.Equal(b.Subject), "subject: %v != %v", a.Subject, b.Subject)
			require.True(t, a.Issuer.Equal(b.Issuer), "issuer: %v != %v", a.Issuer, b.Issuer)
			require.Equal(t, a.SerialNumber, b.SerialNumber)
			require.Equal(t, a.SignatureAlgorithm, b.SignatureAlgorithm)
			require.True(t, a.NotBefore.Equal(b.NotBefore), "notBefore: %v != %v", a.NotBefore, b.NotBefore)
			require.True(t, a.NotAfter.Equal(b.NotAfter), "notAfter: %v != %v", a.NotAfter, b.NotAfter)
			require.Equal(t, a.Version, b.Version)
			require.Len(t, b.Extensions, len(a.Extensions))
		})
	}
}

func TestDecodeFallbackUnsupportedCertificate(t *testing.T) {
	t.Parallel()

	subject := pkix.Name{CommonName: "exotic.example.com", Organization: []string{"Weaver Test"}}
	issuer := pkix.Name{CommonName: "Exotic Issuer"}

	// Version 5 certificates are rejected by crypto/x509, so only the
	// manual walk can serve this one.
	der := craftCertificate(t, 4, subject, issuer,
		asn1.ObjectIdentifier{1, 3, 9999, 1, 1},
		[]rawExtension{basicConstraintsExt(t, false, true)},
	)
	_, err := x509.ParseCertificate(der)
	require.Error(t, err, "expected the standard parser to reject the crafted certificate")

	dec := certdec.NewDecoder()
	rec, err := dec.Decode(t.Context(), der)
	require.NoError(t, err)

	require.Equal(t, 5, rec.Version)
	require.Equal(t, "1f2e3d", rec.SerialNumber)
	require.Equal(t, "exotic.example.com", rec.SubjectCommonName)
	require.Equal(t, "Exotic Issuer", rec.IssuerCommonName)
	require.Equal(t, "1.2.840.10045.4.3.2", rec.SignatureAlgorithm)
	require.False(t, rec.IsCA)
	require.False(t, rec.IsSelfSigned)

	// the public key stays unavailable, only its raw bytes are kept
	require.Empty(t, rec.PublicKeyAlgorithm)
	require.NotEmpty(t, rec.RawSubjectPublicKeyInfo)

	require.Len(t, rec.Extensions, 1)
	require.Equal(t, model.OIDBasicConstraints, rec.Extensions[0].OID)
	require.True(t, rec.Extensions[0].Critical)
	require.NotNil(t, rec.Extensions[0].BasicConstraints)
	require.False(t, rec.Extensions[0].BasicConstraints.IsCA)
}

func TestDecodeUnsupportedPublicKeyKeepsChainFields(t *testing.T) {
	t.Parallel()

	// Same walk as above but through the manual extractor directly: the
	// fields chain building depends on must all be present.
	der := craftCertificate(t, 2, pkix.Name{CommonName: "leaf"}, pkix.Name{CommonName: "parent"},
		asn1.ObjectIdentifier{1, 3, 9999, 2, 2}, nil)

	rec, err := certdec.ManualExtractor().Extract(der)
	require.NoError(t, err)
	require.Equal(t, 3, rec.Version)
	require.Equal(t, "leaf", rec.Subject.CommonName())
	require.Equal(t, "parent", rec.Issuer.CommonName())
	require.True(t, rec.NotBefore.Before(rec.NotAfter))
	require.Empty(t, rec.PublicKeyAlgorithm)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	dec := certdec.NewDecoder()

	_, err := dec.Decode(t.Context(), []byte{0x30, 0x82, 0xff, 0xff, 0x01})
	require.ErrorIs(t, err, model.ErrMalformedEncoding)

	// valid DER, but not a certificate shape
	_, err = dec.Decode(t.Context(), []byte{0x30, 0x03, 0x02, 0x01, 0x05})
	require.ErrorIs(t, err, model.ErrUnsupportedCertificate)
}
