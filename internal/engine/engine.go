// Package engine orchestrates the framer, the decoder and the PKCS#12
// extractor behind one caller-facing API. An Engine is explicitly
// constructed, carries no global state and is safe for concurrent use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/CZERTAINLY/Weaver/internal/certdec"
	"github.com/CZERTAINLY/Weaver/internal/model"
	"github.com/CZERTAINLY/Weaver/internal/pkcs12ext"
)

type Engine struct {
	dec       *certdec.Decoder
	passwords []string
}

type Option func(*Engine)

// WithPasswords sets the PKCS#12 password candidates, tried in order.
// Without this option only the empty password is tried.
func WithPasswords(passwords ...string) Option {
	return func(e *Engine) { e.passwords = passwords }
}

// WithDecoder replaces the default primary-then-fallback decoder.
func WithDecoder(dec *certdec.Decoder) Option {
	return func(e *Engine) { e.dec = dec }
}

func New(opts ...Option) *Engine {
	e := &Engine{dec: certdec.NewDecoder()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ParsePEM scans data for PEM blocks and decodes every certificate block.
// A block that fails to decode contributes a warning, not an error; one bad
// block never hides the rest. Input without a single PEM block reports
// model.ErrNoMatch.
func (e *Engine) ParsePEM(ctx context.Context, data []byte) (*model.ParseResult, error) {
	blocks := certdec.ScanPEM(data)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no PEM blocks found: %w", model.ErrNoMatch)
	}

	var res model.ParseResult
	certBlock := 0
	for _, b := range blocks {
		switch b.Kind {
		case certdec.BlockCertificate:
			certBlock++
			rec, err := e.dec.Decode(ctx, b.DER)
			if err != nil {
				slog.DebugContext(ctx, "Skipping certificate block", "block", certBlock, "error", err)
				res.Warnings = append(res.Warnings, fmt.Sprintf("certificate block %d: %v", certBlock, err))
				continue
			}
			res.Certificates = append(res.Certificates, *rec)
		case certdec.BlockPrivateKey:
			res.PrivateKeys = append(res.PrivateKeys, model.PrivateKeyRecord{
				PEM:       b.PEM,
				Encrypted: b.Encrypted,
			})
		}
	}
	return &res, nil
}

// ParseDER decodes data as a single DER certificate.
func (e *Engine) ParseDER(ctx context.Context, data []byte) (*model.ParseResult, error) {
	rec, err := e.dec.Decode(ctx, data)
	if err != nil {
		return nil, err
	}
	return &model.ParseResult{Certificates: []model.CertificateRecord{*rec}}, nil
}

// ParsePKCS12 decrypts a PKCS#12 container with the configured password
// candidates. When every candidate fails the MAC check the result reports
// needsPassword with empty lists and a nil error, so the caller can prompt
// and retry; any other container failure is fatal for the file.
func (e *Engine) ParsePKCS12(ctx context.Context, data []byte) (*model.ParseResult, error) {
	if !pkcs12ext.Sniff(data) {
		return nil, fmt.Errorf("not a PKCS#12 container: %w", model.ErrNoMatch)
	}
	ex, err := pkcs12ext.Extract(ctx, e.dec, data, e.passwords...)
	if errors.Is(err, model.ErrInvalidPassword) {
		slog.DebugContext(ctx, "PKCS#12 password candidates exhausted")
		return &model.ParseResult{NeedsPassword: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.ParseResult{
		Certificates: ex.Certificates,
		PrivateKeys:  ex.Keys,
		Warnings:     ex.Warnings,
	}, nil
}

// ParseBytes dispatches on the file-name extension hint:
//
//	pfx, p12   PKCS#12
//	der        DER
//	crt, cer   DER first, PEM retry
//	otherwise  PEM first, DER retry
//
// When both attempts of a retry pair fail the joined error wraps
// model.ErrNoMatch.
func (e *Engine) ParseBytes(ctx context.Context, name string, data []byte) (*model.ParseResult, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "pfx", "p12":
		return e.ParsePKCS12(ctx, data)
	case "der":
		return e.ParseDER(ctx, data)
	case "crt", "cer":
		return e.parseEither(ctx, data, e.ParseDER, e.ParsePEM)
	default:
		return e.parseEither(ctx, data, e.ParsePEM, e.ParseDER)
	}
}

// ParseFile reads path and parses it with the extension hint.
func (e *Engine) ParseFile(ctx context.Context, path string) (*model.ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return e.ParseBytes(ctx, path, data)
}

type parseFunc func(context.Context, []byte) (*model.ParseResult, error)

func (e *Engine) parseEither(ctx context.Context, data []byte, first, second parseFunc) (*model.ParseResult, error) {
	res, firstErr := first(ctx, data)
	if firstErr == nil {
		return res, nil
	}
	res, secondErr := second(ctx, data)
	if secondErr == nil {
		return res, nil
	}
	return nil, fmt.Errorf("%w: %w", model.ErrNoMatch, errors.Join(firstErr, secondErr))
}
