// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/featurebasedb/filegdb"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix is prepended to the environment variable names that set flags.
const envPrefix = "FILEGDB"

func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	conf := filegdb.NewConfig()
	rc := &cobra.Command{
		Use:   "filegdb",
		Short: "filegdb reads tables of an Esri File Geodatabase.",
		Long: `filegdb reads tables of an Esri File Geodatabase.

It prints schemas and rows, answers attribute filters with the
tables' attribute indexes, summarizes indexed fields, recovers
rows of tables whose row locator is missing, and computes
checksums of tables and geodatabase directories.
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			err := setAllConfig(v, cmd.Flags())
			if err != nil {
				return err
			}

			// return "dry run" error if "dry-run" flag is set
			ret, err := cmd.Flags().GetBool("dry-run")
			if err != nil {
				return fmt.Errorf("problem getting dry-run flag: %v", err)
			}
			if ret {
				if cmd.Parent() != nil {
					return fmt.Errorf("dry run")
				}
			}

			return conf.Validate()
		},
	}
	rc.PersistentFlags().Bool("dry-run", false, "stop before executing")
	_ = rc.PersistentFlags().MarkHidden("dry-run")
	rc.PersistentFlags().StringP("config", "c", "", "Configuration file to read from.")
	addConfigFlags(rc.PersistentFlags(), conf)

	rc.AddCommand(newSchemaCommand(stdin, stdout, stderr, conf))
	rc.AddCommand(newRowsCommand(stdin, stdout, stderr, conf))
	rc.AddCommand(newStatsCommand(stdin, stdout, stderr, conf))
	rc.AddCommand(newRecoverCommand(stdin, stdout, stderr, conf))
	rc.AddCommand(newChkSumCommand(stdin, stdout, stderr, conf))
	rc.AddCommand(newGenerateConfigCommand(stdin, stdout, stderr))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// addConfigFlags binds the fields of conf to flags named after their toml
// keys, so a config file section such as [table] sets table.* flags.
func addConfigFlags(flags *pflag.FlagSet, conf *filegdb.Config) {
	flags.BoolVarP(&conf.Verbose, "verbose", "v", conf.Verbose, "Enable verbose logging.")
	flags.StringVar(&conf.LogPath, "log-path", conf.LogPath, "Log file to append to instead of stderr.")

	flags.BoolVar(&conf.Table.IgnoreLocator, "table.ignore-locator", conf.Table.IgnoreLocator, "Ignore the .gdbtablx row locator and scan for rows instead.")
	flags.BoolVar(&conf.Table.RequireLocator, "table.require-locator", conf.Table.RequireLocator, "Fail instead of scanning for rows when the .gdbtablx row locator is missing.")
	flags.BoolVar(&conf.Table.ReportDeleted, "table.report-deleted", conf.Table.ReportDeleted, "Return soft-deleted rows found by the recovery scan.")
	flags.Int64Var(&conf.Table.MaxRowSize, "table.max-row-size", conf.Table.MaxRowSize, "Largest row, in bytes, that will be read.")
	flags.Int64Var(&conf.Table.RecoveryRowSizeFactor, "table.recovery-row-size-factor", conf.Table.RecoveryRowSizeFactor, "Multiple of the average row size the recovery scan accepts as a row.")

	flags.BoolVar(&conf.Index.Enabled, "index.enabled", conf.Index.Enabled, "Answer where clauses with attribute indexes when possible.")
}

// setAllConfig takes a FlagSet to be the definition of all configuration
// options, as well as their defaults. It then reads from the command line, the
// environment, and a config file (if specified), and applies the configuration
// in that priority order. Since each flag in the set contains a pointer to
// where its value should be stored, setAllConfig can directly modify the value
// of each config variable.
//
// setAllConfig looks for environment variables which are capitalized versions
// of the flag names with dashes and dots replaced by underscores, and prefixed
// with envPrefix plus an underscore.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet) error { // nolint: unparam
	// add cmd line flag def to viper
	err := v.BindPFlags(flags)
	if err != nil {
		return err
	}

	// add env to viper
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	c := v.GetString("config")
	var flagErr error
	validTags := make(map[string]bool)
	flags.VisitAll(func(f *pflag.Flag) {
		validTags[f.Name] = true
	})

	// add config file to viper
	if c != "" {
		v.SetConfigFile(c)
		v.SetConfigType("toml")
		err := v.ReadInConfig()
		if err != nil {
			return fmt.Errorf("error reading configuration file '%s': %v", c, err)
		}

		for _, key := range v.AllKeys() {
			if _, ok := validTags[key]; !ok {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	// set all values from viper
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil {
			return
		}
		var value string
		if f.Value.Type() == "stringSlice" {
			// v.GetString returns "" for a string slice read from a config
			// file, as opposed to a comma separated string from a flag or
			// env var.
			vss := v.GetStringSlice(f.Name)
			value = strings.Join(vss, ",")
		} else {
			value = v.GetString(f.Name)
		}

		if f.Changed {
			// Already set by a flag, which has the highest priority. Setting
			// it again would append to string slices rather than replace
			// them.
			return
		}
		flagErr = f.Value.Set(value)
	})
	return flagErr
}
