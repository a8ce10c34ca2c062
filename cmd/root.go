package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/ytscribe/cmd/transcript"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ytscribe",
	Short: "YouTube transcript service",
	Long: `ytscribe returns timestamped transcripts for YouTube videos.

Published captions are used when available; otherwise the audio is
downloaded with yt-dlp and sent to a speech-to-text provider. Results are
stored once per video and served from the store afterwards.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(transcript.NewTranscriptCmd())
}
