package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baubot",
		Short: "Telegram broadcast relay with reply collection",
		Long: `baubot delivers messages to registered Telegram users and collects
their answers to multiple-choice prompts.

Run "baubot serve" for the bot and its broadcast listener, and
"baubot send" to submit a broadcast to a running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newSendCommand())
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
