// Package deltascmder
package deltascmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/deltas/cmd/deltas/auth"
	chatcmder "github.com/papercomputeco/deltas/cmd/deltas/chat"
	configcmder "github.com/papercomputeco/deltas/cmd/deltas/config"
	initcmder "github.com/papercomputeco/deltas/cmd/deltas/init"
	replaycmder "github.com/papercomputeco/deltas/cmd/deltas/replay"
	streamcmder "github.com/papercomputeco/deltas/cmd/deltas/stream"
	transcriptscmder "github.com/papercomputeco/deltas/cmd/deltas/transcripts"
	versioncmder "github.com/papercomputeco/deltas/cmd/deltas/version"
)

const deltasLongDesc string = `Deltas streams chat completions from OpenAI, Anthropic and Ollama
and normalizes every vendor's deltas into one canonical chunk sequence.

Stream a single turn, chat interactively, or replay a captured response:
  deltas stream "why is the sky blue?"
  deltas chat
  deltas replay response.sse

Finished turns are recorded as transcripts:
  deltas transcripts list
  deltas transcripts show <id>`

const deltasShortDesc string = "Deltas - Streaming LLM Normalization"

func NewDeltasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "deltas",
		Short:        deltasShortDesc,
		Long:         deltasLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .deltas/ config directory")
	cmd.PersistentFlags().String("log-file", "", "Also write JSON logs to this file")

	// Add subcommands
	cmd.AddCommand(streamcmder.NewStreamCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(replaycmder.NewReplayCmd())
	cmd.AddCommand(transcriptscmder.NewTranscriptsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
