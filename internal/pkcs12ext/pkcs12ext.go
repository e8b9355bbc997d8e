// Package pkcs12ext extracts certificate and private-key records from
// password-protected PKCS#12 containers.
package pkcs12ext

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CZERTAINLY/Weaver/internal/asn1tree"
	"github.com/CZERTAINLY/Weaver/internal/certdec"
	"github.com/CZERTAINLY/Weaver/internal/model"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Extracted holds everything a container yielded. A malformed bag does not
// abort extraction; it only contributes a warning.
type Extracted struct {
	Certificates []model.CertificateRecord
	Keys         []model.PrivateKeyRecord
	Warnings     []string
}

const (
	oidData       = "1.2.840.113549.1.7.1"
	oidSignedData = "1.2.840.113549.1.7.2"
)

// Sniff validates the top-level PFX shape:
// SEQUENCE { version INTEGER, authSafe ContentInfo (id-data or id-signedData), ... }.
// It keeps mis-shaped containers (JKS, BKS) out of the PKCS#12 path.
func Sniff(b []byte) bool {
	top, err := asn1tree.Decode(b)
	if err != nil || top.Class != asn1tree.ClassUniversal || top.Tag != asn1tree.TagSequence || !top.Constructed {
		return false
	}
	if len(top.Children) < 2 {
		return false
	}
	version := top.Children[0]
	if version.Tag != asn1tree.TagInteger {
		return false
	}
	v, err := version.Integer()
	if err != nil || !v.IsInt64() || v.Int64() > 10 {
		return false
	}
	ci := top.Children[1]
	if ci.Tag != asn1tree.TagSequence || len(ci.Children) == 0 {
		return false
	}
	oid, err := ci.Children[0].OID()
	if err != nil {
		return false
	}
	return oid == oidData || oid == oidSignedData
}

// Extract decrypts the container, trying each password in order (no
// passwords means the empty string). A wrong password for every candidate
// reports model.ErrInvalidPassword; any other failure is fatal for the file.
func Extract(ctx context.Context, dec *certdec.Decoder, b []byte, passwords ...string) (*Extracted, error) {
	if len(passwords) == 0 {
		passwords = []string{""}
	}
	var lastErr error
	for _, pw := range passwords {
		ex, err := extractOne(ctx, dec, b, pw)
		if err == nil {
			return ex, nil
		}
		lastErr = err
		if !errors.Is(err, model.ErrInvalidPassword) {
			return nil, err
		}
	}
	return nil, lastErr
}

func extractOne(ctx context.Context, dec *certdec.Decoder, b []byte, password string) (*Extracted, error) {
	// Trust-store first: certs-only containers (e.g. Java truststore
	// exports) are not decodable as a key+chain.
	if certs, err := pkcs12.DecodeTrustStore(b, password); err == nil {
		return fromBags(ctx, dec, nil, certs), nil
	} else if errors.Is(err, pkcs12.ErrIncorrectPassword) {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPassword, err)
	}

	key, leaf, cas, err := pkcs12.DecodeChain(b, password)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidPassword, err)
		}
		return nil, fmt.Errorf("decoding PKCS#12: %w", err)
	}

	certs := make([]*x509.Certificate, 0, 1+len(cas))
	if leaf != nil {
		certs = append(certs, leaf)
	}
	certs = append(certs, cas...)

	ex := fromBags(ctx, dec, key, certs)
	return ex, nil
}

func fromBags(ctx context.Context, dec *certdec.Decoder, key any, certs []*x509.Certificate) *Extracted {
	var ex Extracted

	for _, c := range certs {
		rec, err := dec.Decode(ctx, c.Raw)
		if err != nil {
			slog.WarnContext(ctx, "skipping certificate bag", "err", err)
			ex.Warnings = append(ex.Warnings, fmt.Sprintf("certificate bag: %v", err))
			continue
		}
		ex.Certificates = append(ex.Certificates, *rec)
	}

	if key != nil {
		// Shrouded bags arrive decrypted here, so the re-encoded PEM is a
		// plain PKCS#8 key and the record reports encrypted=false.
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			slog.WarnContext(ctx, "skipping key bag", "err", err)
			ex.Warnings = append(ex.Warnings, fmt.Sprintf("key bag: %v", err))
		} else {
			ex.Keys = append(ex.Keys, model.PrivateKeyRecord{
				PEM:       certdec.RenderPEM("PRIVATE KEY", der),
				Encrypted: false,
			})
		}
	}

	return &ex
}
