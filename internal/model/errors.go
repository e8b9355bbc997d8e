package model

import (
	"errors"
)

var (
	// ErrMalformedEncoding means a block of input bytes is not valid DER,
	// or a length prefix overruns the buffer. It aborts that block only.
	ErrMalformedEncoding = errors.New("malformed encoding")

	// ErrUnsupportedCertificate means neither the standard nor the manual
	// field extractor could interpret a certificate structure.
	ErrUnsupportedCertificate = errors.New("unsupported certificate")

	// ErrInvalidPassword means PKCS#12 decryption failed because of a wrong
	// password. Callers use it as a re-prompt signal.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrNoMatch means the input bytes matched no supported format.
	ErrNoMatch = errors.New("no match")
)
