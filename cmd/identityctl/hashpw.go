package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/spf13/cobra"
)

func newHashPasswordCmd(load func() (goIdentity.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the argon2id hash of a password",
		Long: `hash-password hashes with the configured argon2id parameters, for
seeding user rows. Without an argument the password is read from the first
line of stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			var pass string
			if len(args) == 1 {
				pass = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no password on stdin")
				}
				pass = strings.TrimRight(line, "\r\n")
			}

			hasher, err := password.NewArgon2(password.Config{
				Memory:      cfg.Password.Memory,
				Time:        cfg.Password.Time,
				Parallelism: cfg.Password.Parallelism,
				SaltLength:  cfg.Password.SaltLength,
				KeyLength:   cfg.Password.KeyLength,
			})
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(pass)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
