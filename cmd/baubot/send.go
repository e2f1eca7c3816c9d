package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"baubot/internal/config"
	"baubot/internal/protocol"
	logx "baubot/pkg/logx"

	"github.com/spf13/cobra"
)

type sendOptions struct {
	Addr     string
	Retries  int
	Timeout  time.Duration
	Options  []string
	Sender   string
	Message  string
	Deadline time.Duration
	Verbose  bool
}

func newSendCommand() *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send [flags] recipient...",
		Short: "Broadcast a message through a running server",
		Long: `Broadcast a message through a running server and print one JSON line
per recipient response.

Each --option flag adds one row of buttons; labels within a row are
comma separated. Without --option no reply is requested.

Example:
  baubot send --sender ci --message "deploy to prod?" --option approve,deny --timeout 2m alice bob`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd.Context(), opts, args, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", config.DefaultListen, "server address (host:port)")
	cmd.Flags().IntVar(&opts.Retries, "retries", 3, "extra connection attempts")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", time.Minute, "how long recipients may take to answer")
	cmd.Flags().StringArrayVar(&opts.Options, "option", nil, "row of comma separated reply options (repeatable)")
	cmd.Flags().StringVar(&opts.Sender, "sender", "cli", "sender name")
	cmd.Flags().StringVarP(&opts.Message, "message", "m", "", "message text (HTML)")
	cmd.Flags().DurationVar(&opts.Deadline, "deadline", 0, "give up after this long and withdraw unanswered prompts (0 waits for all)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log connection attempts to stderr")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

// buildRequest turns CLI flags into a wire request.
func buildRequest(opts *sendOptions, recipients []string) (protocol.Request, error) {
	req := protocol.Request{
		Sender:     opts.Sender,
		Recipients: recipients,
		Message:    opts.Message,
	}
	var grid [][]string
	for _, row := range opts.Options {
		var labels []string
		for _, l := range strings.Split(row, ",") {
			if l = strings.TrimSpace(l); l != "" {
				labels = append(labels, l)
			}
		}
		if len(labels) > 0 {
			grid = append(grid, labels)
		}
	}
	if len(grid) > 0 {
		if opts.Timeout <= 0 {
			return req, fmt.Errorf("--timeout must be positive")
		}
		req.Responses = &protocol.Responses{
			Timeout:  uint64(opts.Timeout / time.Millisecond),
			Keyboard: grid,
		}
	}
	return req, nil
}

func send(parent context.Context, opts *sendOptions, recipients []string, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	req, err := buildRequest(opts, recipients)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	if opts.Deadline > 0 {
		var dcancel context.CancelFunc
		ctx, dcancel = context.WithTimeout(ctx, opts.Deadline)
		defer dcancel()
	}

	client := protocol.NewClient(opts.Addr, opts.Retries)
	client.DialTimeout = 5 * time.Second
	if opts.Verbose {
		client.Log = logx.NewConsole("trace")
	}
	stream, err := client.Send(ctx, req)
	if err != nil {
		return err
	}

	enc := protocol.NewEncoder(out)
	for resp := range stream {
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return ctx.Err()
}
