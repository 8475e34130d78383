package main

import (
	"github.com/go-go-golems/deckhand/cmd/deckhand/cmds"
	"github.com/go-go-golems/deckhand/pkg/config"
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "deckhand",
	Short: "Terminal client for the presentation studio: account, chat assistant and templates",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// --log-level and co are only parsed once cobra ran
		return logging.InitLoggerFromCobra(cmd)
	},
}

func main() {
	// .env values must be in the environment before viper binds it
	if err := config.LoadDotEnv(); err != nil {
		log.Warn().Err(err).Msg("ignoring .env")
	}

	err := clay.InitGlazed(config.Slug, rootCmd)
	cobra.CheckErr(err)

	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	config.ConfigureViper(viper.GetViper())
	// reads ~/.deckhand/config.yaml
	err = config.ReadConfigFile(viper.GetViper())
	cobra.CheckErr(err)

	err = cmds.AddToRootCommand(rootCmd)
	cobra.CheckErr(err)

	cobra.CheckErr(rootCmd.Execute())
}
