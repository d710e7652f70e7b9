package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// settings are the resolved global options. Priority: flag > REGISTRYCTL_*
// environment variable > config file > default.
type settings struct {
	v *viper.Viper
}

func (s settings) server() string    { return strings.TrimRight(s.v.GetString("server"), "/") }
func (s settings) output() string    { return s.v.GetString("output") }
func (s settings) role() string      { return s.v.GetString("role") }
func (s settings) principal() string { return s.v.GetString("principal") }
func (s settings) token() string     { return s.v.GetString("token") }

func newRootCmd() *cobra.Command {
	v := viper.New()
	s := settings{v: v}

	cmd := &cobra.Command{
		Use:   "registryctl",
		Short: "CLI for the land registry server",
		Long: `registryctl submits, approves and verifies land parcel records on a
land registry server.

Global options can also be set through REGISTRYCTL_* environment variables
(for example REGISTRYCTL_SERVER) or a YAML config file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if path := v.GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", path, err)
				}
			}
			switch s.output() {
			case "table", "json", "yaml":
				return nil
			default:
				return fmt.Errorf("unsupported output format %q (use table, json or yaml)", s.output())
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.String("server", "http://localhost:4000", "Land registry server URL")
	pf.StringP("output", "o", "table", "Output format: table, json, yaml")
	pf.String("role", "", "Role sent in the X-User-Role header (surveyor or admin)")
	pf.String("principal", "", "Identity sent in the X-User-Principal header")
	pf.String("token", "", "Bearer token for servers running JWT auth")
	pf.String("config", "", "Path to a registryctl config file")
	_ = v.BindPFlags(pf)

	v.SetEnvPrefix("REGISTRYCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd.AddCommand(newHealthCmd(s))
	cmd.AddCommand(newParcelsCmd(s))
	cmd.AddCommand(newVerifyCmd(s))
	return cmd
}
