package main

import (
	"github.com/spf13/cobra"

	"deid-export/internal/cli"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		profilePath   string
		overridesPath string
		output        string
		dryRun        bool
		dateIncrement int
		workers       int
		salt          string
		recursive     bool
	)

	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "De-identify a file or every supported file in a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("workers") {
				cfg.Run.Workers = workers
			}
			if flags.Changed("salt") {
				cfg.Run.Salt = salt
			}
			if flags.Changed("recursive") {
				cfg.Run.Recursive = recursive
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			opts := cli.Options{
				Input:         args[0],
				ProfilePath:   profilePath,
				OverridesPath: overridesPath,
				Output:        output,
				DryRun:        dryRun,
				Config:        cfg,
				Stdout:        cmd.OutOrStdout(),
			}
			if flags.Changed("date-increment") {
				opts.DateIncrement = &dateIncrement
			}
			return cli.Run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&profilePath, "profile", "p", "", "De-identification profile (YAML or JSON)")
	flags.StringVar(&overridesPath, "overrides", "", "Per-subject override table (CSV)")
	flags.StringVarP(&output, "output", "o", "", "Output folder (default <input>/deidentified)")
	flags.BoolVarP(&dryRun, "dry-run", "n", false, "Process without writing outputs")
	flags.IntVar(&dateIncrement, "date-increment", 0, "Days to shift dates by, overriding the profile")
	flags.IntVarP(&workers, "workers", "w", 4, "Parallel workers")
	flags.StringVarP(&salt, "salt", "k", "", "Salt for hash and hashuid (default: random per run)")
	flags.BoolVarP(&recursive, "recursive", "r", true, "Search subdirectories")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func newProfilesCommand(ctx *commandContext) *cobra.Command {
	var (
		profilePath   string
		overridesPath string
		dir           string
	)

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Write one effective profile per subject of an override table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return cli.WriteProfiles(cmd.OutOrStdout(), profilePath, overridesPath, dir, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&profilePath, "profile", "p", "", "Template profile (YAML or JSON)")
	flags.StringVar(&overridesPath, "overrides", "", "Per-subject override table (CSV)")
	flags.StringVarP(&dir, "output", "o", ".", "Folder for the deid_<code>.yml files")
	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("overrides")
	return cmd
}

func newValidateCommand(ctx *commandContext) *cobra.Command {
	var overridesPath string

	cmd := &cobra.Command{
		Use:   "validate <profile>",
		Short: "Check a profile and, optionally, an override table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return cli.Validate(cmd.OutOrStdout(), args[0], overridesPath, cfg)
		},
	}
	cmd.Flags().StringVar(&overridesPath, "overrides", "", "Per-subject override table (CSV)")
	return cmd
}

func newInitCommand() *cobra.Command {
	var (
		output        string
		dateIncrement int
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter DICOM profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.WriteStarterProfile(cmd.OutOrStdout(), output, dateIncrement)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "deid_profile.yml", "Profile file to create")
	cmd.Flags().IntVar(&dateIncrement, "date-increment", -30, "Days to shift dates by")
	return cmd
}
