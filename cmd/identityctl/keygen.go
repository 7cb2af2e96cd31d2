package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/spf13/cobra"
)

func newKeygenCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a P-521 key pair for claim tokens",
		Long: `keygen writes private.pem and public.pem for the ES512 claim token codec.
Point token.private_key_file and token.public_key_file at them.
Without --out the PEM blocks are printed to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			privatePEM, publicPEM, err := jwt.GenerateKeyPair()
			if err != nil {
				return fmt.Errorf("generate key pair: %w", err)
			}

			if outDir == "" {
				out := cmd.OutOrStdout()
				_, _ = out.Write(privatePEM)
				_, err = out.Write(publicPEM)
				return err
			}

			if err := os.MkdirAll(outDir, 0o700); err != nil {
				return fmt.Errorf("create %s: %w", outDir, err)
			}
			privatePath := filepath.Join(outDir, "private.pem")
			if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
				return fmt.Errorf("write private key: %w", err)
			}
			publicPath := filepath.Join(outDir, "public.pem")
			if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
				return fmt.Errorf("write public key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", privatePath, publicPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "directory to write private.pem and public.pem into")
	return cmd
}
