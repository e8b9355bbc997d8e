// Package chain groups decoded certificate records into ordered trust
// chains and serializes them into deployable bundles.
package chain

import (
	"strings"

	"github.com/CZERTAINLY/Weaver/internal/model"
)

// Chain is an ordered sequence of records from the leaf up to the root, or
// up to the deepest ancestor present in the input when the root is missing.
type Chain []*model.CertificateRecord

// Leaf returns the end-entity record.
func (c Chain) Leaf() *model.CertificateRecord { return c[0] }

// Root returns the last record, which is the root only if it is self-signed.
func (c Chain) Root() *model.CertificateRecord { return c[len(c)-1] }

// Complete reports whether the chain terminates in a self-signed record.
func (c Chain) Complete() bool { return c.Root().IsSelfSigned }

// Build reconstructs chains from an unordered record collection. Input
// records are never mutated; the result references them.
//
// Matching is by common-name string equality, preserving the protocol
// behavior of the tool this engine descends from: records sharing a CN but
// differing in other DN attributes, or relatable only through key
// identifier extensions, will be mismatched or left unmatched. Each walk
// step scans the whole collection, so building is O(n²); inputs are a
// handful of certificates, not CT logs.
func Build(records []*model.CertificateRecord) []Chain {
	var chains []Chain
	member := map[*model.CertificateRecord]bool{}

	// End-entity leaves first.
	for i, rec := range records {
		if rec.IsCA {
			continue
		}
		c := walk(records, i)
		chains = append(chains, c)
		for _, r := range c {
			member[r] = true
		}
	}

	// A self-signed record is its own trivial chain when nothing above
	// linked to it as an ancestor.
	for i, rec := range records {
		if !rec.IsCA || !rec.IsSelfSigned || member[rec] {
			continue
		}
		c := walk(records, i)
		chains = append(chains, c)
		for _, r := range c {
			member[r] = true
		}
	}

	return chains
}

// walk follows issuer links upward from the leaf at index start. A visited
// set guards against CN cycles.
func walk(records []*model.CertificateRecord, start int) Chain {
	visited := map[int]bool{}
	var c Chain

	cur := start
	for {
		if visited[cur] {
			break
		}
		visited[cur] = true
		c = append(c, records[cur])

		if records[cur].IsSelfSigned {
			break // root reached
		}

		next := -1
		for j, cand := range records {
			if !visited[j] && cand.SubjectCommonName == records[cur].IssuerCommonName {
				next = j
				break
			}
		}
		if next == -1 {
			break // issuer unknown, chain ends at the deepest record available
		}
		cur = next
	}

	return c
}

// Bundle concatenates a chain (leaf first) and an optional key into the
// conventional layout reverse proxies consume: each certificate PEM, then a
// blank line and the key PEM. The stored PEM text is reused verbatim, and
// trailing whitespace is trimmed.
func Bundle(c Chain, key *model.PrivateKeyRecord) string {
	var b strings.Builder
	for _, rec := range c {
		b.WriteString(rec.PEM)
		b.WriteString("\n")
	}
	if key != nil {
		b.WriteString("\n")
		b.WriteString(key.PEM)
	}
	return strings.TrimSpace(b.String())
}
