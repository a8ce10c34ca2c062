package transcript

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/ytscribe/internal/app"
	"github.com/Taichi-iskw/ytscribe/internal/model"
	transcriptsvc "github.com/Taichi-iskw/ytscribe/internal/service/transcript"
	"github.com/Taichi-iskw/ytscribe/internal/service/youtube"
)

// NewTranscriptCmd creates and returns the transcript command
func NewTranscriptCmd() *cobra.Command {
	transcriptCmd := &cobra.Command{
		Use:   "transcript",
		Short: "Transcript operations for videos",
		Long:  `Fetch, create and inspect timestamped transcripts of YouTube videos.`,
	}

	transcriptCmd.AddCommand(newCreateCmd())
	transcriptCmd.AddCommand(newGetCmd())
	transcriptCmd.AddCommand(newResolveCmd())

	return transcriptCmd
}

// newCreateCmd creates the transcript create command
func newCreateCmd() *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create [URL_OR_VIDEO_ID]",
		Short: "Create transcript for a video",
		Long: `Return the stored transcript for a video, or produce one from its captions
or, failing that, from its audio, and store it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]

			dryRun, _ := cmd.Flags().GetBool("dry-run")
			format, _ := cmd.Flags().GetString("format")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			formatter, err := NewFormatter(format)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			out := cmd.OutOrStdout()

			if dryRun {
				cfg, logger, err := app.LoadWithoutStorage()
				if err != nil {
					return err
				}
				quiet(logger, cfg.Log.File)
				return runDryRunMode(ctx, out, cfg, logger, input, formatter)
			}

			cfg, logger, err := app.Load()
			if err != nil {
				return err
			}
			quiet(logger, cfg.Log.File)

			svc, cleanup, err := app.NewServiceFactory(cfg, logger).CreateService(ctx)
			if err != nil {
				return formatTranscriptError(err, input)
			}
			defer cleanup()

			result, err := svc.CreateTranscript(ctx, transcriptsvc.Input{URL: input})
			if err != nil {
				return formatTranscriptError(err, input)
			}

			return write(out, formatter, result)
		},
	}

	createCmd.Flags().BoolP("dry-run", "n", false, "Dry-run mode: fetch the transcript without reading or writing the store")
	createCmd.Flags().StringP("format", "f", "text", "Output format: text, json, srt")
	createCmd.Flags().Duration("timeout", 30*time.Minute, "Give up after this long")

	return createCmd
}

// newGetCmd creates the transcript get command
func newGetCmd() *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get [TRANSCRIPT_ID]",
		Short: "Get transcript by ID",
		Long:  `Retrieve and display a stored transcript with its segments by ID.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			format, _ := cmd.Flags().GetString("format")
			formatter, err := NewFormatter(format)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			cfg, logger, err := app.Load()
			if err != nil {
				return err
			}
			quiet(logger, cfg.Log.File)

			svc, cleanup, err := app.NewServiceFactory(cfg, logger).CreateService(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := svc.GetTranscript(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to get transcript: %w", err)
			}

			return write(cmd.OutOrStdout(), formatter, &transcriptsvc.Result{
				Transcript: t,
				VideoID:    t.VideoID,
				Source:     model.Source(t.SourceKind),
			})
		},
	}

	getCmd.Flags().StringP("format", "f", "text", "Output format: text, json, srt")

	return getCmd
}

// newResolveCmd creates the transcript resolve command
func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [URL_OR_VIDEO_ID]",
		Short: "Print the video ID for a URL",
		Long:  `Extract the 11-character video ID from any supported YouTube URL form. No network calls are made.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, ok := youtube.ResolveVideoID(args[0])
			if !ok {
				return formatTranscriptError(transcriptsvc.ErrInvalidInput, args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), videoID)
			return nil
		},
	}
}

func write(out io.Writer, formatter Formatter, result *transcriptsvc.Result) error {
	output, err := formatter.Format(result)
	if err != nil {
		return err
	}
	fmt.Fprint(out, output)
	return nil
}

// quiet keeps command output clean: logs go to stderr at warn and above
// unless a log file is configured
func quiet(logger *logrus.Logger, logFile string) {
	if logFile != "" {
		return
	}
	logger.SetOutput(os.Stderr)
	if logger.GetLevel() > logrus.WarnLevel {
		logger.SetLevel(logrus.WarnLevel)
	}
}
