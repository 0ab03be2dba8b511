package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/elscan/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	skip := map[string]string{annotationSkipValidation: "true"}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create elscan configuration files",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write a configuration file with the default settings",
		Long: `Write the default configuration as YAML. The file defaults to elscan.yaml
in the current directory, which is the first place elscan looks.`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: skip,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigFileName + ".yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteFile(path, config.DefaultConfig(), force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return err
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:         "show",
		Short:       "Print the resolved configuration with secrets masked",
		Args:        cobra.NoArgs,
		Annotations: skip,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := a.cfg.Redacted().YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	pathsCmd := &cobra.Command{
		Use:         "paths",
		Short:       "List the directories searched for " + config.ConfigFileName + ".{yaml,json,toml}",
		Args:        cobra.NoArgs,
		Annotations: skip,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, p := range config.SearchPaths() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), p); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd, pathsCmd)
	return cmd
}
