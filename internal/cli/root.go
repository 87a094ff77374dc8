package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tensorlogic",
	Short: "Neural-symbolic inference engine",
	Long:  "Tensorlogic unifies probabilistic logic with tensor attention: atoms carry truth values and embeddings, rules fire by similarity, and training adjusts both. Single Go binary.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(demoCmd)
}
