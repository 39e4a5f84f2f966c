// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package cmd

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mia-platform/beanslog"
)

const (
	validateCmdUsage = "validate <config-file>"
	validateCmdShort = "validate a logger configuration file"
	validateCmdLong  = `Validate a logger configuration file.
	The file is decoded, overlaid on the built-in defaults together with the
	environment overrides, and checked field by field. On success the effective
	configuration is printed as YAML, with every path template resolved.`

	validateCmdExample = `# Validate the default config file
	beanslog validate configs/logger.yml`

	demoCmdUsage = "demo [config-file]"
	demoCmdShort = "load a configuration and emit sample log lines"
	demoCmdLong  = `Load a configuration and emit one sample log line per level.
	Use it to preview the configured handlers: console formatting, file and
	JSON outputs are produced exactly as a host application would.`

	demoCmdExample = `# Preview the handlers configured by a file
	beanslog demo configs/logger.yml`
)

// ValidateCmd returns the Cobra command that validates a configuration file.
func ValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     validateCmdUsage,
		Short:   heredoc.Doc(validateCmdShort),
		Long:    heredoc.Doc(validateCmdLong),
		Example: heredoc.Doc(validateCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := beanslog.LoadConfig(args[0])
			if err != nil {
				cmd.PrintErrln(err)
				return err
			}

			encoded, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
}

// DemoCmd returns the Cobra command that loads a configuration and emits a
// sample line at every level.
func DemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:     demoCmdUsage,
		Short:   heredoc.Doc(demoCmdShort),
		Long:    heredoc.Doc(demoCmdLong),
		Example: heredoc.Doc(demoCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []beanslog.Option{}
			if len(args) > 0 {
				opts = append(opts, beanslog.WithConfigPath(args[0]))
			}

			loader := beanslog.NewLoader(opts...)
			log, err := loader.Load()
			if err != nil {
				cmd.PrintErrln(err)
				return err
			}
			defer loader.Close()

			log.Trace("sample trace line")
			log.Debug("sample debug line")
			log.Info("sample info line", "key", "value")
			log.Warn("sample warn line")
			log.Error("sample error line", "error", "sample failure")

			for _, spec := range loader.Handlers() {
				target := spec.Path
				if target == "" {
					target = "console"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", spec.Name, target)
			}
			return nil
		},
	}
}
