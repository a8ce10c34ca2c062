package transcript

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Taichi-iskw/ytscribe/internal/app"
	"github.com/Taichi-iskw/ytscribe/internal/config"
	transcriptsvc "github.com/Taichi-iskw/ytscribe/internal/service/transcript"
)

// runDryRunMode runs the scrape and audio tiers without touching the store
func runDryRunMode(ctx context.Context, out io.Writer, cfg *config.Config, logger logrus.FieldLogger, input string, formatter Formatter) error {
	svc, err := app.NewServiceFactory(cfg, logger).CreateDryRunService(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "🎵 Fetching transcript for %s (dry-run mode)...\n", input)

	result, err := svc.CreateTranscript(ctx, transcriptsvc.Input{URL: input, DryRun: true})
	if err != nil {
		return formatTranscriptError(err, input)
	}

	fmt.Fprintf(out, "✅ Done via %s, %d segments\n", result.Source, len(result.Transcript.Segments))
	fmt.Fprintf(out, "ℹ️  Results not saved (dry-run mode)\n\n")

	output, err := formatter.Format(result)
	if err != nil {
		return err
	}
	fmt.Fprint(out, output)
	return nil
}
