package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/spigell/grantfit/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Run: func(_ *cobra.Command, _ []string) {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(config.Mask(viper.AllSettings())); err != nil {
			log.Fatalf("encoding config: %v", err)
		}
		enc.Close()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the configuration can be loaded",
	Run: func(_ *cobra.Command, _ []string) {
		if _, err := config.Load(viper.GetViper()); err != nil {
			log.Fatalf("config is invalid: %v", err)
		}
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Printf("%s is valid\n", used)
			return
		}
		fmt.Println("defaults and environment are valid")
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
