package certdec

import (
	"encoding/base64"
	"encoding/pem"
	"strings"
)

// BlockKind classifies a framed PEM block.
type BlockKind int

const (
	BlockCertificate BlockKind = iota
	BlockPrivateKey
)

// Block is one extracted PEM block: the decoded DER payload plus a canonical
// re-rendering of the PEM text it came from.
type Block struct {
	Kind      BlockKind
	Label     string
	DER       []byte
	PEM       string
	Encrypted bool // key blocks whose label contains ENCRYPTED
}

const (
	beginPrefix = "-----BEGIN "
	endPrefix   = "-----END "
)

// ScanPEM walks the input line by line and captures every BEGIN/END block.
// Classification is by substring match on the BEGIN label: anything
// containing CERTIFICATE is a certificate, anything containing PRIVATE KEY
// is a key. Extraction is best effort: unterminated blocks, unknown labels
// and undecodable base64 bodies contribute nothing and raise no error.
func ScanPEM(data []byte) []Block {
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")

	var out []Block
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, beginPrefix) {
			i++
			continue
		}
		label := strings.TrimSuffix(strings.TrimPrefix(line, beginPrefix), "-----")

		end := i + 1
		for end < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[end]), endPrefix) {
			end++
		}
		if end == len(lines) {
			// BEGIN with no matching END: discarded silently.
			i++
			continue
		}

		var body strings.Builder
		for _, l := range lines[i+1 : end] {
			body.WriteString(strings.TrimSpace(l))
		}
		der, err := base64.StdEncoding.DecodeString(body.String())
		i = end + 1
		if err != nil || len(der) == 0 {
			continue
		}

		switch {
		case strings.Contains(label, "CERTIFICATE"):
			out = append(out, Block{
				Kind:  BlockCertificate,
				Label: label,
				DER:   der,
				PEM:   RenderPEM("CERTIFICATE", der),
			})
		case strings.Contains(label, "PRIVATE KEY"):
			out = append(out, Block{
				Kind:      BlockPrivateKey,
				Label:     label,
				DER:       der,
				PEM:       RenderPEM(label, der),
				Encrypted: strings.Contains(label, "ENCRYPTED"),
			})
		}
	}
	return out
}

// RenderPEM encodes der under the given label in the conventional 64-column
// layout, without a trailing newline.
func RenderPEM(label string, der []byte) string {
	b := pem.EncodeToMemory(&pem.Block{Type: label, Bytes: der})
	return strings.TrimRight(string(b), "\n")
}
