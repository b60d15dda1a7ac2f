package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/leadchat/internal/api"
	"github.com/matheus3301/leadchat/internal/session"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	session string
	json    bool
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "leadchatctl",
		Short:         "Control a running leadchat daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.session, "session", "", "session name (overrides config default)")
	root.PersistentFlags().BoolVar(&g.json, "json", false, "output in JSON format")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		statusCmd(g),
		authCmd(g),
		connectCmd(g),
		disconnectCmd(g),
		logoutCmd(g),
		chatsCmd(g),
		archiveCmd(g),
		historyCmd(g),
		sendCmd(g),
		replyCmd(g),
		editCmd(g),
		deleteCmd(g),
		forwardCmd(g),
		searchCmd(g),
		watchCmd(g),
		groupsCmd(g),
		resolveCmd(g),
		dispatchCmd(g),
		importCmd(g),
	)
	return root
}

// dial connects to the daemon of the resolved session.
func (g *globalFlags) dial() (*api.Client, error) {
	name := session.Resolve(g.session)
	if err := session.ValidateName(name); err != nil {
		return nil, err
	}
	c, err := api.Dial(session.SocketPath(name))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon for session %q: %w", name, err)
	}
	return c, nil
}

// run dials the daemon and calls fn with a bounded context.
func (g *globalFlags) run(fn func(ctx context.Context, c *api.Client) error) error {
	c, err := g.dial()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	return fn(ctx, c)
}

// output prints v as JSON when --json is set, otherwise calls human.
func (g *globalFlags) output(v any, human func()) {
	if g.json {
		outputJSON(v)
		return
	}
	human()
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
