package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"zhtp-core/internal/identity"
)

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "identity", Short: "identity management"}
	cmd.AddCommand(identityCreateCmd())
	cmd.AddCommand(identityImportCmd())
	return cmd
}

func identityCreateCmd() *cobra.Command {
	var (
		entropy    int
		passphrase string
		out        string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "generate a new identity and print its recovery mnemonic once",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, mnemonic, err := identity.NewRandom(entropy)
			if err != nil {
				return err
			}
			if err := writeKeystore(out, passphrase, id.Private.MasterSeed); err != nil {
				return err
			}
			fmt.Printf("did: %s\n", id.DID())
			fmt.Printf("mnemonic (write this down, it is never stored): %s\n", mnemonic)
			fmt.Printf("keystore written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().IntVar(&entropy, "entropy", 256, "mnemonic entropy bits: 128 or 256")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "passphrase protecting the keystore file")
	cmd.Flags().StringVar(&out, "out", "identity.keystore", "path to write the sealed keystore")
	return cmd
}

func identityImportCmd() *cobra.Command {
	var (
		mnemonic       string
		bip39Passphrase string
		passphrase     string
		out            string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "recover an identity from an existing mnemonic",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.NewFromMnemonic(mnemonic, bip39Passphrase)
			if err != nil {
				return err
			}
			if err := writeKeystore(out, passphrase, id.Private.MasterSeed); err != nil {
				return err
			}
			fmt.Printf("did: %s\n", id.DID())
			fmt.Printf("keystore written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "recovery phrase")
	cmd.Flags().StringVar(&bip39Passphrase, "bip39-passphrase", "", "optional BIP-39 passphrase used at creation")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "passphrase protecting the keystore file")
	cmd.Flags().StringVar(&out, "out", "identity.keystore", "path to write the sealed keystore")
	cmd.MarkFlagRequired("mnemonic")
	return cmd
}

func writeKeystore(path, passphrase string, masterSeed []byte) error {
	sealed, err := identity.Seal(passphrase, masterSeed)
	if err != nil {
		return fmt.Errorf("seal keystore: %w", err)
	}
	return os.WriteFile(path, sealed, 0o600)
}
