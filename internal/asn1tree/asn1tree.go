// Package asn1tree is a generic recursive DER decoder. Unlike encoding/asn1
// it does not unmarshal into Go types: it produces the raw tag-length-value
// tree, keeping tag classes and element order, which the manual certificate
// field walk needs.
package asn1tree

import (
	"fmt"
	"math/big"
	"time"

	"github.com/CZERTAINLY/Weaver/internal/model"
)

// Tag classes, numerically identical to the DER class bits.
const (
	ClassUniversal       = 0
	ClassApplication     = 1
	ClassContextSpecific = 2
	ClassPrivate         = 3
)

// Universal tag numbers used by the certificate walk.
const (
	TagBoolean         = 1
	TagInteger         = 2
	TagBitString       = 3
	TagOctetString     = 4
	TagNull            = 5
	TagOID             = 6
	TagUTF8String      = 12
	TagSequence        = 16
	TagSet             = 17
	TagPrintableString = 19
	TagT61String       = 20
	TagIA5String       = 22
	TagUTCTime         = 23
	TagGeneralizedTime = 24
)

// Node is one decoded TLV element. Primitive nodes carry Content, constructed
// nodes carry Children in encoding order. Full is the complete TLV slice the
// node was decoded from. Nodes are immutable after Decode returns.
type Node struct {
	Class       int
	Tag         int
	Constructed bool
	Content     []byte
	Children    []*Node
	Full        []byte
}

// Decode parses b as exactly one DER element. Trailing bytes, truncation and
// overrunning length prefixes report model.ErrMalformedEncoding.
func Decode(b []byte) (*Node, error) {
	n, rest, err := decodeNode(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after element", model.ErrMalformedEncoding, len(rest))
	}
	return n, nil
}

func decodeNode(b []byte) (*Node, []byte, error) {
	if len(b) == 0 {
		return nil, nil, fmt.Errorf("%w: empty element", model.ErrMalformedEncoding)
	}

	n := &Node{
		Class:       int(b[0] >> 6),
		Constructed: b[0]&0x20 != 0,
		Tag:         int(b[0] & 0x1f),
	}
	off := 1

	// Tag numbers >= 31 continue in base-128 bytes.
	if n.Tag == 0x1f {
		n.Tag = 0
		for {
			if off >= len(b) {
				return nil, nil, fmt.Errorf("%w: truncated tag number", model.ErrMalformedEncoding)
			}
			c := b[off]
			off++
			if n.Tag > 1<<24 {
				return nil, nil, fmt.Errorf("%w: tag number too large", model.ErrMalformedEncoding)
			}
			n.Tag = n.Tag<<7 | int(c&0x7f)
			if c&0x80 == 0 {
				break
			}
		}
	}

	length, off, err := decodeLength(b, off)
	if err != nil {
		return nil, nil, err
	}
	if length > len(b)-off {
		return nil, nil, fmt.Errorf("%w: length %d overruns buffer", model.ErrMalformedEncoding, length)
	}

	n.Content = b[off : off+length]
	n.Full = b[:off+length]

	if n.Constructed {
		rest := n.Content
		for len(rest) > 0 {
			var child *Node
			child, rest, err = decodeNode(rest)
			if err != nil {
				return nil, nil, err
			}
			n.Children = append(n.Children, child)
		}
	}

	return n, b[off+length:], nil
}

func decodeLength(b []byte, off int) (int, int, error) {
	if off >= len(b) {
		return 0, 0, fmt.Errorf("%w: missing length", model.ErrMalformedEncoding)
	}
	c := b[off]
	off++
	if c < 0x80 {
		return int(c), off, nil
	}

	count := int(c & 0x7f)
	if count == 0 {
		// Indefinite lengths are BER, not DER.
		return 0, 0, fmt.Errorf("%w: indefinite length", model.ErrMalformedEncoding)
	}
	if count > 4 {
		return 0, 0, fmt.Errorf("%w: length of %d bytes", model.ErrMalformedEncoding, count)
	}
	if off+count > len(b) {
		return 0, 0, fmt.Errorf("%w: truncated length", model.ErrMalformedEncoding)
	}
	length := 0
	for i := 0; i < count; i++ {
		length = length<<8 | int(b[off+i])
	}
	if length < 0 {
		return 0, 0, fmt.Errorf("%w: negative length", model.ErrMalformedEncoding)
	}
	return length, off + count, nil
}

// OID decodes the content as an OBJECT IDENTIFIER in dotted notation. Each
// arc after the first encoded value is a base-128 chunk; the combined first
// value splits into value/40 and value%40, except that any value >= 80
// belongs to the joint arc 2.
func (n *Node) OID() (string, error) {
	if len(n.Content) == 0 {
		return "", fmt.Errorf("%w: empty OID", model.ErrMalformedEncoding)
	}

	var values []uint64
	var v uint64
	for i, c := range n.Content {
		if v > 1<<56 {
			return "", fmt.Errorf("%w: OID arc too large", model.ErrMalformedEncoding)
		}
		v = v<<7 | uint64(c&0x7f)
		if c&0x80 == 0 {
			values = append(values, v)
			v = 0
		} else if i == len(n.Content)-1 {
			return "", fmt.Errorf("%w: truncated OID arc", model.ErrMalformedEncoding)
		}
	}

	var arcs []uint64
	if first := values[0]; first < 80 {
		arcs = append(arcs, first/40, first%40)
	} else {
		arcs = append(arcs, 2, first-80)
	}
	arcs = append(arcs, values[1:]...)

	s := ""
	for i, a := range arcs {
		if i > 0 {
			s += "."
		}
		s += fmt.Sprintf("%d", a)
	}
	return s, nil
}

// Bool decodes a BOOLEAN: a single byte, zero meaning false.
func (n *Node) Bool() (bool, error) {
	if len(n.Content) != 1 {
		return false, fmt.Errorf("%w: BOOLEAN of %d bytes", model.ErrMalformedEncoding, len(n.Content))
	}
	return n.Content[0] != 0, nil
}

// Integer decodes the content as an unsigned arbitrary-precision integer.
// Certificate serial numbers are the only consumer, and those are treated as
// byte strings rather than signed values.
func (n *Node) Integer() (*big.Int, error) {
	if len(n.Content) == 0 {
		return nil, fmt.Errorf("%w: empty INTEGER", model.ErrMalformedEncoding)
	}
	return new(big.Int).SetBytes(n.Content), nil
}

const (
	utcTimeFormat         = "060102150405Z"
	generalizedTimeFormat = "20060102150405Z"
)

// Time decodes UTCTime (YYMMDDHHMMSSZ) or GeneralizedTime (YYYYMMDDHHMMSSZ)
// by fixed-format parsing.
func (n *Node) Time() (time.Time, error) {
	s := string(n.Content)
	if t, err := time.Parse(utcTimeFormat, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(generalizedTimeFormat, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized time %q", model.ErrMalformedEncoding, s)
}

// Text returns the content bytes as a string. Value decoding beyond the byte
// level (T.61, BMPString) is out of scope for a viewer.
func (n *Node) Text() string {
	return string(n.Content)
}
