package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CZERTAINLY/Weaver/internal/cbom"
	"github.com/CZERTAINLY/Weaver/internal/chain"
	"github.com/CZERTAINLY/Weaver/internal/engine"
	"github.com/CZERTAINLY/Weaver/internal/log"
	"github.com/CZERTAINLY/Weaver/internal/model"
	"github.com/CZERTAINLY/Weaver/internal/parallel"
)

var (
	flagChainIndex int
	flagKeyIndex   int
	flagOutput     string
)

func init() {
	bundleCmd.Flags().IntVar(&flagChainIndex, "chain-index", 0, "which reconstructed chain to serialize")
	bundleCmd.Flags().IntVar(&flagKeyIndex, "key-index", -1, "which parsed private key to append, -1 means the first one found")
	bundleCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write the bundle to a file instead of stdout")
}

// fileResult is one input file's decode outcome as printed by parse.
type fileResult struct {
	File   string             `json:"file"`
	Result *model.ParseResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// decodeAll parses every file concurrently with the configured passwords.
func decodeAll(cmd *cobra.Command, files []string) []fileResult {
	ctx := cmd.Context()
	eng := engine.New(engine.WithPasswords(config.Passwords...))

	results := parallel.Map(ctx, runtime.NumCPU(), files, func(ctx context.Context, file string) (*model.ParseResult, error) {
		ctx = log.WithAttrs(ctx, slog.String("file", file))
		return eng.ParseFile(ctx, file)
	})

	out := make([]fileResult, len(files))
	for i, r := range results {
		out[i] = fileResult{File: files[i], Result: r.Value}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			slog.WarnContext(ctx, "decoding failed", "file", files[i], "error", r.Err)
		}
	}
	return out
}

func doParse(cmd *cobra.Command, args []string) error {
	results := decodeAll(cmd, args)

	if config.Output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printParseText(os.Stdout, results)
	}

	return failedAll(results)
}

func printParseText(w io.Writer, results []fileResult) {
	for _, fr := range results {
		fmt.Fprintf(w, "%s:\n", fr.File)
		if fr.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", fr.Error)
			continue
		}
		if fr.Result.NeedsPassword {
			fmt.Fprintln(w, "  needs password")
			continue
		}
		for i, c := range fr.Result.Certificates {
			markers := ""
			if c.IsCA {
				markers += " CA"
			}
			if c.IsSelfSigned {
				markers += " self-signed"
			}
			fmt.Fprintf(w, "  certificate %d: subject CN=%s issuer CN=%s serial=%s valid %s .. %s%s\n",
				i+1, c.SubjectCommonName, c.IssuerCommonName, c.SerialNumber,
				c.NotBefore.Format("2006-01-02"), c.NotAfter.Format("2006-01-02"), markers)
		}
		for i, k := range fr.Result.PrivateKeys {
			state := "plaintext"
			if k.Encrypted {
				state = "encrypted"
			}
			fmt.Fprintf(w, "  private key %d: %s\n", i+1, state)
		}
		for _, warn := range fr.Result.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warn)
		}
	}
}

// pool flattens successful decode results into chain reconstruction input.
func pool(results []fileResult) (certs []*model.CertificateRecord, keys []*model.PrivateKeyRecord) {
	for i := range results {
		res := results[i].Result
		if res == nil {
			continue
		}
		for j := range res.Certificates {
			certs = append(certs, &res.Certificates[j])
		}
		for j := range res.PrivateKeys {
			keys = append(keys, &res.PrivateKeys[j])
		}
	}
	return certs, keys
}

func doChain(cmd *cobra.Command, args []string) error {
	results := decodeAll(cmd, args)
	certs, _ := pool(results)
	if len(certs) == 0 {
		return errors.New("no certificates decoded from the inputs")
	}

	chains := chain.Build(certs)
	for i, c := range chains {
		if !c.Complete() {
			// informational: the chain just terminates early
			slog.InfoContext(cmd.Context(), "no matching issuer found",
				"chain", i+1, "last", c.Root().SubjectCommonName, "issuer", c.Root().IssuerCommonName)
		}
	}

	if config.Output == "json" {
		type chainOut struct {
			Complete     bool                      `json:"complete"`
			Certificates []model.CertificateRecord `json:"certificates"`
		}
		out := make([]chainOut, 0, len(chains))
		for _, c := range chains {
			co := chainOut{Complete: c.Complete()}
			for _, rec := range c {
				co.Certificates = append(co.Certificates, *rec)
			}
			out = append(out, co)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		for i, c := range chains {
			state := "complete"
			if !c.Complete() {
				state = "partial"
			}
			fmt.Printf("chain %d (%s):\n", i+1, state)
			for j, rec := range c {
				markers := ""
				if rec.IsCA {
					markers += " CA"
				}
				if rec.IsSelfSigned {
					markers += " self-signed"
				}
				fmt.Printf("  %d. CN=%s%s\n", j+1, rec.SubjectCommonName, markers)
			}
		}
	}

	return failedAll(results)
}

func doBundle(cmd *cobra.Command, args []string) error {
	results := decodeAll(cmd, args)
	certs, keys := pool(results)
	if len(certs) == 0 {
		return errors.New("no certificates decoded from the inputs")
	}

	chains := chain.Build(certs)
	if flagChainIndex < 0 || flagChainIndex >= len(chains) {
		return fmt.Errorf("chain index %d out of range, %d chain(s) reconstructed", flagChainIndex, len(chains))
	}

	var key *model.PrivateKeyRecord
	switch {
	case flagKeyIndex < 0:
		if len(keys) > 0 {
			key = keys[0]
		}
	case flagKeyIndex < len(keys):
		key = keys[flagKeyIndex]
	default:
		return fmt.Errorf("key index %d out of range, %d key(s) parsed", flagKeyIndex, len(keys))
	}

	bundle := chain.Bundle(chains[flagChainIndex], key) + "\n"
	if flagOutput == "" {
		_, err := io.WriteString(os.Stdout, bundle)
		return err
	}
	return os.WriteFile(flagOutput, []byte(bundle), 0600)
}

func doCBOM(cmd *cobra.Command, args []string) error {
	results := decodeAll(cmd, args)

	b := cbom.NewBuilder()
	decoded := 0
	for i := range results {
		if results[i].Result == nil {
			continue
		}
		decoded++
		b.AppendResult(results[i].Result, formatLabel(results[i].File))
	}
	if decoded == 0 {
		return errors.New("no inputs decoded")
	}
	return b.AsJSON(os.Stdout)
}

// formatLabel names the originating container format for BOM properties.
func formatLabel(file string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(file), ".")) {
	case "pfx", "p12":
		return "PKCS12"
	case "der":
		return "DER"
	default:
		return "PEM"
	}
}

// failedAll reports an error only when not a single input decoded.
func failedAll(results []fileResult) error {
	for _, fr := range results {
		if fr.Error == "" {
			return nil
		}
	}
	return errors.New("all inputs failed to decode")
}
