package cli

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/runoshun/crew-agent/internal/app"
	"github.com/runoshun/crew-agent/internal/domain"
)

// configView is the printable form of domain.Config. Keys follow the config file layout.
type configView struct {
	Backend struct {
		URL       string `toml:"url" yaml:"url"`
		Token     string `toml:"token,omitempty" yaml:"token,omitempty"`
		JWTSecret string `toml:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`
		SecretKey string `toml:"secret_key,omitempty" yaml:"secret_key,omitempty"`
		Timeout   string `toml:"timeout" yaml:"timeout"`
	} `toml:"backend" yaml:"backend"`
	Agent struct {
		ProjectID    string `toml:"project_id" yaml:"project_id"`
		ContainerID  string `toml:"container_id" yaml:"container_id"`
		WorkspaceDir string `toml:"workspace_dir" yaml:"workspace_dir"`
		SkipRepoSync bool   `toml:"skip_repo_sync" yaml:"skip_repo_sync"`
	} `toml:"agent" yaml:"agent"`
	Loop struct {
		IdleInterval     string `toml:"idle_interval" yaml:"idle_interval"`
		ErrorInterval    string `toml:"error_interval" yaml:"error_interval"`
		MaxErrorInterval string `toml:"max_error_interval" yaml:"max_error_interval"`
	} `toml:"loop" yaml:"loop"`
	Log struct {
		Level  string `toml:"level" yaml:"level"`
		Format string `toml:"format" yaml:"format"`
		Dir    string `toml:"dir" yaml:"dir"`
	} `toml:"log" yaml:"log"`
	Telemetry struct {
		Endpoint    string `toml:"endpoint" yaml:"endpoint"`
		ServiceName string `toml:"service_name" yaml:"service_name"`
	} `toml:"telemetry" yaml:"telemetry"`
	Scripts []domain.ScriptRule `toml:"scripts" yaml:"scripts"`
}

func newConfigView(cfg domain.Config) configView {
	cfg = cfg.Redacted()

	var v configView
	v.Backend.URL = cfg.Backend.URL
	v.Backend.Token = cfg.Backend.Token
	v.Backend.JWTSecret = cfg.Backend.JWTSecret
	v.Backend.SecretKey = cfg.Backend.SecretKey
	v.Backend.Timeout = cfg.Backend.Timeout.String()
	v.Agent.ProjectID = cfg.Agent.ProjectID
	v.Agent.ContainerID = cfg.Agent.ContainerID
	v.Agent.WorkspaceDir = cfg.Agent.WorkspaceDir
	v.Agent.SkipRepoSync = cfg.Agent.SkipRepoSync
	v.Loop.IdleInterval = cfg.Loop.IdleInterval.String()
	v.Loop.ErrorInterval = cfg.Loop.ErrorInterval.String()
	v.Loop.MaxErrorInterval = cfg.Loop.MaxErrorInterval.String()
	v.Log.Level = cfg.Log.Level
	v.Log.Format = cfg.Log.Format
	v.Log.Dir = cfg.Log.Dir
	v.Telemetry.Endpoint = cfg.Telemetry.Endpoint
	v.Telemetry.ServiceName = cfg.Telemetry.ServiceName
	v.Scripts = cfg.Scripts
	return v
}

// newConfigCommand creates the config command.
func newConfigCommand(opts *app.Options) *cobra.Command {
	var format string
	var validate bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Display effective configuration",
		Long: `Display the effective configuration after merging defaults, the config
file, .env and the process environment. Secrets are masked.

With --validate the command fails if the agent could not start with this
configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != formatYAML && format != formatTOML {
				return fmt.Errorf("unknown format %q (use yaml or toml)", format)
			}

			cfg, err := app.LoadConfig(*opts)
			if err != nil {
				return err
			}
			if err := writeConfig(cmd.OutOrStdout(), format, newConfigView(*cfg)); err != nil {
				return err
			}
			if validate {
				if err := cfg.Validate(); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Configuration is valid.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatYAML, "Output format: yaml or toml")
	cmd.Flags().BoolVar(&validate, "validate", false, "Fail if required settings are missing or invalid")

	return cmd
}

func writeConfig(w io.Writer, format string, view configView) error {
	if format == formatTOML {
		enc := toml.NewEncoder(w)
		enc.SetIndentTables(true)
		return enc.Encode(view)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return err
	}
	return enc.Close()
}
