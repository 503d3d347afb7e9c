package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"zhtp-core/internal/storage"
)

func domainCmd() *cobra.Command {
	var stateFile string
	cmd := &cobra.Command{Use: "domain", Short: "sovereign-TLD domain registry"}
	cmd.PersistentFlags().StringVar(&stateFile, "state-file", "domains.json", "JSON file holding the domain registry snapshot")
	cmd.AddCommand(domainRegisterCmd(&stateFile))
	cmd.AddCommand(domainUpdateCmd(&stateFile))
	cmd.AddCommand(domainRollbackCmd(&stateFile))
	cmd.AddCommand(domainResolveCmd(&stateFile))
	return cmd
}

func loadRegistry(stateFile string) (*storage.DomainRegistry, error) {
	reg := storage.NewDomainRegistry()
	data, err := os.ReadFile(stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, fmt.Errorf("read %s: %w", stateFile, err)
	}
	var snap storage.DomainSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse %s: %w", stateFile, err)
	}
	reg.Restore(snap)
	return reg, nil
}

func saveRegistry(stateFile string, reg *storage.DomainRegistry) error {
	data, err := json.MarshalIndent(reg.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	return os.WriteFile(stateFile, data, 0o600)
}

func parseCapability(s string) (storage.Capability, error) {
	switch s {
	case "http-serve":
		return storage.HttpServe, nil
	case "spa-serve":
		return storage.SpaServe, nil
	case "download-only":
		return storage.DownloadOnly, nil
	default:
		return 0, fmt.Errorf("unknown capability %q (want http-serve|spa-serve|download-only)", s)
	}
}

func domainRegisterCmd(stateFile *string) *cobra.Command {
	var (
		manifest   string
		ownerDID   string
		capability string
	)
	cmd := &cobra.Command{
		Use:   "register <domain>",
		Short: "register a new .zhtp/.sov domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(*stateFile)
			if err != nil {
				return err
			}
			cap, err := parseCapability(capability)
			if err != nil {
				return err
			}
			rec, err := reg.Register(args[0], storage.ContentId(manifest), ownerDID, cap)
			if err != nil {
				return err
			}
			if err := saveRegistry(*stateFile, reg); err != nil {
				return err
			}
			fmt.Printf("registered %s at version %d\n", rec.Domain, rec.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "content id of the manifest to serve")
	cmd.Flags().StringVar(&ownerDID, "owner", "", "owning identity's DID")
	cmd.Flags().StringVar(&capability, "capability", "http-serve", "http-serve|spa-serve|download-only")
	cmd.MarkFlagRequired("manifest")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func domainUpdateCmd(stateFile *string) *cobra.Command {
	var (
		newManifest      string
		expectedPrevious string
	)
	cmd := &cobra.Command{
		Use:   "update <domain>",
		Short: "compare-and-swap a domain's manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(*stateFile)
			if err != nil {
				return err
			}
			rec, err := reg.Update(args[0], storage.ContentId(newManifest), storage.ContentId(expectedPrevious))
			if err != nil {
				return err
			}
			if err := saveRegistry(*stateFile, reg); err != nil {
				return err
			}
			fmt.Printf("updated %s to version %d\n", rec.Domain, rec.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&newManifest, "manifest", "", "new manifest content id")
	cmd.Flags().StringVar(&expectedPrevious, "expected-previous", "", "manifest content id expected to currently be live")
	cmd.MarkFlagRequired("manifest")
	cmd.MarkFlagRequired("expected-previous")
	return cmd
}

func domainRollbackCmd(stateFile *string) *cobra.Command {
	var version int
	cmd := &cobra.Command{
		Use:   "rollback <domain>",
		Short: "restore a domain's manifest to a prior history version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(*stateFile)
			if err != nil {
				return err
			}
			rec, err := reg.Rollback(args[0], version)
			if err != nil {
				return err
			}
			if err := saveRegistry(*stateFile, reg); err != nil {
				return err
			}
			fmt.Printf("rolled back %s to manifest %s (new version %d)\n", rec.Domain, rec.CurrentManifestCID, rec.Version)
			return nil
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "history version to restore")
	cmd.MarkFlagRequired("version")
	return cmd
}

func domainResolveCmd(stateFile *string) *cobra.Command {
	var version int
	cmd := &cobra.Command{
		Use:   "resolve <domain>",
		Short: "resolve a domain to its current or historical manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(*stateFile)
			if err != nil {
				return err
			}
			var v *int
			if cmd.Flags().Changed("version") {
				v = &version
			}
			rec, manifest, err := reg.Resolve(args[0], v)
			if err != nil {
				return err
			}
			fmt.Printf("%s -> %s (version %d, capability %s)\n", rec.Domain, manifest, rec.Version, rec.Capability)
			return nil
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "resolve a specific historical version instead of the current one")
	return cmd
}
