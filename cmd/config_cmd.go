package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/walletbridge/internal/config"
	"github.com/nextlevelbuilder/walletbridge/internal/crypto"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and validate configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configPathCmd())
	cmd.AddCommand(configValidateCmd())
	cmd.AddCommand(configSealCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration (secrets redacted)",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
				os.Exit(1)
			}
			data, _ := json.MarshalIndent(cfg.MaskedCopy(), "", "  ")
			fmt.Println(string(data))
		},
	}
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid config: %s\n", err)
				os.Exit(1)
			}
			if ok, reason := cfg.CoordinatorEnabled(); !ok {
				fmt.Printf("Note: coordinator will not run (%s).\n", reason)
			}
			fmt.Printf("Config at %s is valid.\n", cfgPath)
		},
	}
}

func configSealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seal [value]",
		Short: "Encrypt a secret with $WALLETBRIDGE_ENCRYPTION_KEY for use in the config file",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			key := os.Getenv(config.EnvPrefix + "ENCRYPTION_KEY")
			if key == "" {
				fmt.Fprintf(os.Stderr, "Set %sENCRYPTION_KEY first.\n", config.EnvPrefix)
				os.Exit(1)
			}
			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				var err error
				if value, err = promptPassword("Secret", "The value to seal"); err != nil {
					fmt.Println("Cancelled.")
					return
				}
			}
			sealed, err := crypto.Seal(value, key)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(sealed)
		},
	}
}
