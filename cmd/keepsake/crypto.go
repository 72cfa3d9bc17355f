package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"keepsake/internal/plan"
	"keepsake/internal/recovery"
	vaultmodels "keepsake/internal/vault/models"
	"keepsake/internal/vaultcrypto"
)

func newSealCmd() *cobra.Command {
	var (
		in, out, tier, hint string
		passwordStdin       bool
	)
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a file under a master password and create its recovery kit",
		Long: `Encrypt a file under a master password and create its recovery kit.

The output is the JSON body for POST /v1/vaults. The recovery kit is written
to stderr and is shown only once: print fragment A and fragment B separately
and store them apart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			plaintext, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read plaintext: %w", err)
			}
			defer vaultcrypto.Wipe(plaintext)

			secrets := newSecretReader(cmd, passwordStdin)
			password, err := secrets.read(cmd, "Master password: ")
			if err != nil {
				return err
			}
			defer vaultcrypto.Wipe(password)
			if len(password) == 0 {
				return errors.New("master password must not be empty")
			}
			if !passwordStdin {
				confirm, err := secrets.read(cmd, "Confirm master password: ")
				if err != nil {
					return err
				}
				defer vaultcrypto.Wipe(confirm)
				if string(confirm) != string(password) {
					return errors.New("passwords do not match")
				}
			}

			payload, err := vaultcrypto.Seal(password, plaintext)
			if err != nil {
				return fmt.Errorf("seal payload: %w", err)
			}
			kit, backup, err := recovery.NewKit(password)
			if err != nil {
				return fmt.Errorf("create recovery kit: %w", err)
			}

			req := vaultmodels.InitializeRequest{
				Plan:           plan.Tier(tier),
				Payload:        payload,
				Hint:           hint,
				RecoveryBackup: backup,
			}
			if err := writeJSON(cmd, out, req); err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			fmt.Fprintln(stderr, "Recovery kit (shown once):")
			fmt.Fprintf(stderr, "  Fragment A: %s\n", kit.FragmentA)
			fmt.Fprintf(stderr, "  Fragment B: %s\n", kit.FragmentB)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "File to seal")
	cmd.Flags().StringVar(&out, "out", "", "Write the vault JSON here instead of stdout")
	cmd.Flags().StringVar(&tier, "plan", string(plan.TierFree), "Plan tier")
	cmd.Flags().StringVar(&hint, "hint", "", "Password hint shown to beneficiaries")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the master password from stdin")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newOpenCmd() *cobra.Command {
	var (
		in, out       string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Decrypt a sealed vault file locally with the master password",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readVault(in)
			if err != nil {
				return err
			}
			password, err := newSecretReader(cmd, passwordStdin).read(cmd, "Master password: ")
			if err != nil {
				return err
			}
			defer vaultcrypto.Wipe(password)

			plaintext, err := vaultcrypto.Open(password, req.Payload)
			if err != nil {
				return errors.New("invalid credentials or recovery material")
			}
			defer vaultcrypto.Wipe(plaintext)
			return writeRaw(cmd, out, plaintext)
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Vault JSON produced by seal")
	cmd.Flags().StringVar(&out, "out", "", "Write the plaintext here instead of stdout")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the master password from stdin")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newMergeCmd() *cobra.Command {
	var a, b string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Join and check the two recovery fragments",
		RunE: func(cmd *cobra.Command, args []string) error {
			res := recovery.Merge(recovery.Fragment(a), recovery.Fragment(b))
			if !res.Valid {
				for _, err := range res.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "  - %v\n", err)
				}
				return errors.New("recovery fragments are not valid")
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Mnemonic.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&a, "a", "", "Fragment A (words 1-12)")
	cmd.Flags().StringVar(&b, "b", "", "Fragment B (words 13-24)")
	_ = cmd.MarkFlagRequired("a")
	_ = cmd.MarkFlagRequired("b")
	return cmd
}

func newRecoverCmd() *cobra.Command {
	var in, a, b string
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Recover the master password from both fragments and the vault's backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readVault(in)
			if err != nil {
				return err
			}
			if req.RecoveryBackup.IsZero() {
				return errors.New("vault has no recovery backup")
			}
			res := recovery.Merge(recovery.Fragment(a), recovery.Fragment(b))
			if !res.Valid {
				return fmt.Errorf("recovery fragments are not valid: %w", errors.Join(res.Errors...))
			}
			password, err := recovery.RecoverMasterPassword(res.Mnemonic, req.RecoveryBackup)
			if err != nil {
				return errors.New("invalid credentials or recovery material")
			}
			defer vaultcrypto.Wipe(password)
			fmt.Fprintln(cmd.OutOrStdout(), string(password))
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Vault JSON produced by seal")
	cmd.Flags().StringVar(&a, "a", "", "Fragment A (words 1-12)")
	cmd.Flags().StringVar(&b, "b", "", "Fragment B (words 13-24)")
	for _, f := range []string{"in", "a", "b"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func readVault(path string) (*vaultmodels.InitializeRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vault file: %w", err)
	}
	var req vaultmodels.InitializeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse vault file: %w", err)
	}
	return &req, nil
}

func writeJSON(cmd *cobra.Command, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeRaw(cmd, path, append(data, '\n'))
}

// writeRaw writes to path with owner-only permissions, or to stdout when
// path is empty.
func writeRaw(cmd *cobra.Command, path string, data []byte) error {
	var w io.Writer = cmd.OutOrStdout()
	if path != "" {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err := w.Write(data)
	return err
}
