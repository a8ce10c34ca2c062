package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Taichi-iskw/ytscribe/internal/config"
)

func init() {
	rootCmd.AddCommand(newConfigCmd())
}

// newConfigCmd creates the config command group
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or scaffold the ytscribe settings file",
		Long: `The settings file lives in ~/.ytscribe/config.yaml. It selects the
transcript store, the speech-to-text provider used when a video has no
captions, the optional S3 archive and the HTTP server limits. Environment
variables such as DATABASE_URL and DEEPGRAM_API_KEY override it.`,
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter settings file",
		Long: `Write a starter settings file with a postgres store, the deepgram
speech provider and no archive. Nothing is overwritten if the file exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitConfig(databaseURL); err != nil {
				return err
			}
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			cfg, err := config.NewConfigWithoutStorage()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n\n", path)
			writeChecklist(out, cfg)
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres URL written as database_url")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var summaryOnly bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			cfg, err := config.NewConfigWithoutStorage()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Settings file: %s\n\n", path)
			writeChecklist(out, cfg)
			if summaryOnly {
				return nil
			}

			raw, err := yaml.Marshal(cfg.Masked())
			if err != nil {
				return fmt.Errorf("failed to format configuration: %w", err)
			}
			fmt.Fprintf(out, "\n%s", raw)
			return nil
		},
	}
	cmd.Flags().BoolVar(&summaryOnly, "summary", false, "print only the per-section summary")
	return cmd
}

func writeChecklist(w io.Writer, cfg *config.Config) {
	for _, line := range describeConfig(cfg) {
		fmt.Fprintf(w, "  %-8s %s\n", line.section, line.status)
	}
}

type sectionStatus struct {
	section string
	status  string
}

// describeConfig reports what each section will do at startup and what is
// still missing
func describeConfig(cfg *config.Config) []sectionStatus {
	var storage string
	switch cfg.Storage.Driver {
	case "sqlite":
		storage = "sqlite file " + cfg.Storage.SQLitePath
	case "mongo":
		if cfg.Storage.MongoURI == "" {
			storage = "mongo, set storage.mongo_uri"
		} else {
			storage = "mongo database " + cfg.Storage.MongoDatabase
		}
	default:
		if cfg.DatabaseURL == "" {
			storage = "postgres, set database_url or DATABASE_URL"
		} else {
			storage = "postgres, run 'ytscribe migrate up' once"
		}
	}

	speech := cfg.Speech.Provider + " ready"
	if !cfg.SpeechEnabled() {
		speech = cfg.Speech.Provider + " disabled, captions only (set speech.api_key or DEEPGRAM_API_KEY)"
	}

	archive := "off"
	if cfg.Archive.Bucket != "" {
		archive = "s3://" + strings.TrimSuffix(cfg.Archive.Bucket+"/"+cfg.Archive.Prefix, "/")
	}

	server := fmt.Sprintf("%s, %d requests/min per client", cfg.Server.Addr, cfg.Server.RequestsPerMinute)

	return []sectionStatus{
		{"storage", storage},
		{"speech", speech},
		{"archive", archive},
		{"server", server},
	}
}
