package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/vidtutor/internal/resolver"
)

func addSignatureFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("token", "t", nil, "Error signature token (repeatable)")
	cmd.Flags().StringArrayP("marker", "m", nil, "Structural marker, e.g. an AST node kind (repeatable)")
	cmd.Flags().String("signature", "", "JSON file with {\"tokens\": [...], \"markers\": [...]}")
}

// signatureFrom merges --signature with any --token and --marker flags.
func signatureFrom(cmd *cobra.Command) (resolver.ErrorSignature, error) {
	var sig resolver.ErrorSignature
	if path, _ := cmd.Flags().GetString("signature"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return sig, fmt.Errorf("read signature: %w", err)
		}
		if sig, err = resolver.ParseSignature(data); err != nil {
			return sig, err
		}
	}
	tokens, _ := cmd.Flags().GetStringArray("token")
	markers, _ := cmd.Flags().GetStringArray("marker")
	sig.Tokens = append(sig.Tokens, tokens...)
	sig.Markers = append(sig.Markers, markers...)
	return sig, nil
}
