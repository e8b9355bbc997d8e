// Package certdec decodes DER certificate bytes into structured records and
// frames PEM input into blocks.
package certdec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CZERTAINLY/Weaver/internal/model"
)

// Decoder runs its extractors in order until one succeeds. The zero layering
// is standard-then-manual; callers needing a single strategy pass it
// explicitly. Decoders are stateless and safe for concurrent use.
type Decoder struct {
	extractors []FieldExtractor
}

// NewDecoder builds a Decoder. Without arguments it tries the standard
// library extractor first and the manual positional walk second.
func NewDecoder(extractors ...FieldExtractor) *Decoder {
	if len(extractors) == 0 {
		extractors = []FieldExtractor{StandardExtractor(), ManualExtractor()}
	}
	return &Decoder{extractors: extractors}
}

// Decode turns one DER certificate into a record, deriving the PEM encoding,
// common names, CA and self-signed flags. Truncated or overrunning input
// reports model.ErrMalformedEncoding; a structure no extractor can interpret
// reports model.ErrUnsupportedCertificate.
func (d *Decoder) Decode(ctx context.Context, der []byte) (*model.CertificateRecord, error) {
	var lastErr error
	for _, ex := range d.extractors {
		rec, err := ex.Extract(der)
		if err != nil {
			slog.DebugContext(ctx, "certificate extractor failed", "extractor", fmt.Sprintf("%T", ex), "err", err)
			lastErr = err
			continue
		}
		derive(rec, der)
		return rec, nil
	}
	if errors.Is(lastErr, model.ErrMalformedEncoding) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %v", model.ErrUnsupportedCertificate, lastErr)
}

func derive(rec *model.CertificateRecord, der []byte) {
	rec.DER = der
	rec.PEM = RenderPEM("CERTIFICATE", der)
	rec.SubjectCommonName = rec.Subject.CommonName()
	rec.IssuerCommonName = rec.Issuer.CommonName()
	rec.IsSelfSigned = rec.Subject.Equal(rec.Issuer)
	for _, e := range rec.Extensions {
		if e.BasicConstraints != nil {
			rec.IsCA = e.BasicConstraints.IsCA
			break
		}
	}
}
