package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/leadchat/internal/api"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/spf13/cobra"
)

func chatsCmd(g *globalFlags) *cobra.Command {
	var (
		filter   string
		archived bool
		refresh  bool
	)
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(func(ctx context.Context, c *api.Client) error {
				req := &api.ListRequest{Filter: filter, ShowArchived: archived}
				call := c.Conversations
				if refresh {
					call = c.Refresh
				}
				resp, err := call(ctx, req)
				if err != nil {
					return err
				}
				g.output(resp, func() {
					if resp.Error != "" {
						fmt.Fprintf(os.Stderr, "warning: last refresh failed: %s\n", resp.Error)
					}
					if len(resp.Conversations) == 0 {
						fmt.Println("No conversations.")
						return
					}
					for _, conv := range resp.Conversations {
						printConversation(conv, conv.ChannelID == resp.Active)
					}
				})
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "match name, channel id or last message")
	cmd.Flags().BoolVar(&archived, "archived", false, "include archived conversations")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload the list from the provider first")
	return cmd
}

func printConversation(c provider.Conversation, active bool) {
	marker := " "
	if active {
		marker = ">"
	}
	unread := ""
	if c.UnreadCount > 0 {
		unread = fmt.Sprintf(" (%d)", c.UnreadCount)
	}
	if c.Archived {
		unread += " [archived]"
	}
	last := ""
	if c.LastMessage != nil {
		last = truncate(c.LastMessage.Body, 40)
	}
	fmt.Printf("%s %-32s %-28s %s\n", marker, c.ChannelID, c.DisplayName()+unread, last)
}

func archiveCmd(g *globalFlags) *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "archive <channel-id>",
		Short: "Archive or unarchive a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(func(ctx context.Context, c *api.Client) error {
				resp, err := c.SetArchived(ctx, args[0], !undo)
				if err != nil {
					return err
				}
				g.output(resp, func() { printAck(resp) })
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "unarchive instead")
	return cmd
}

func historyCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <channel-id>",
		Short: "Select a conversation and print its recent messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(func(ctx context.Context, c *api.Client) error {
				resp, err := c.Select(ctx, args[0])
				if err != nil {
					return err
				}
				if limit > resp.Limit {
					if resp, err = c.LoadMore(ctx, args[0], limit); err != nil {
						return err
					}
				}
				g.output(resp, func() {
					if !resp.ReachedStart {
						fmt.Println("...")
					}
					for _, m := range resp.Messages {
						printMessage(m)
					}
				})
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "load at least this many messages")
	return cmd
}

func printMessage(m provider.Message) {
	who := "them"
	if m.FromMe {
		who = "me"
	}
	body := m.Body
	if m.HasMedia {
		body = fmt.Sprintf("[%s] %s", m.Type, body)
	}
	fmt.Printf("%s  %-4s %s  (%s)\n", m.Time().Format("2006-01-02 15:04"), who, body, m.ID)
}

func sendCmd(g *globalFlags) *cobra.Command {
	var (
		file    string
		caption string
	)
	cmd := &cobra.Command{
		Use:   "send <channel-id> [text]",
		Short: "Send text, or a file with --file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(func(ctx context.Context, c *api.Client) error {
				var (
					resp *api.MessageResponse
					err  error
				)
				if file != "" {
					media, lerr := loadMedia(file, caption)
					if lerr != nil {
						return lerr
					}
					resp, err = c.SendMedia(ctx, &api.SendMediaRequest{ChannelID: args[0], Media: media})
				} else {
					if len(args) < 2 {
						return errors.New("text is required without --file")
					}
					resp, err = c.SendText(ctx, args[0], args[1])
				}
				if err != nil {
					return err
				}
				g.output(resp, func() { fmt.Printf("Sent: %s\n", resp.Message.ID) })
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path of a file to send as media")
	cmd.Flags().StringVar(&caption, "caption", "", "caption for --file")
	return cmd
}

// loadMedia reads a file and guesses its MIME type from the extension,
// falling back to content sniffing.
func loadMedia(path, caption string) (provider.Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return provider.Media{}, err
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return provider.Media{Data: data, MimeType: mimeType, Filename: filepath.Base(path), Caption: caption}, nil
}

func replyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reply <channel-id> <message-id> <text>",
		Short: "Reply quoting a message",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(func(ctx context.Context, c *api.Client) error {
				resp, err := c.Reply(ctx, &api.ReplyRequest{ChannelID: args[0], QuotedID: args[1], Text: args[2]})
				if err != nil {
					return err
				}
				g.output(resp, func() { fmt.Printf("Sent: %s\n", resp.Message.ID) })
				return nil
			})
		},
	}
}

func editCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <channel-id> <message-id> <text>",
		Short: "Replace the body of a sent message",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(func(ctx context.Context, c *api.Client) error {
				resp, err := c.Edit(ctx, &api.EditRequest{ChannelID: args[0], MessageID: args[1], Body: args[2]})
				if err != nil {
					return err
				}
				g.output(resp, func() { fmt.Printf("Success: %v - %s\n", resp.OK, resp.Body) })
				return nil
			})
		},
	}
}

func deleteCmd(g *globalFlags) *cobra.Command {
	var everyone bool
	cmd := &cobra.Command{
		Use:   "delete <channel-id> <message-id>",
		Short: "Delete a message locally, or for everyone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(func(ctx context.Context, c *api.Client) error {
				resp, err := c.Delete(ctx, &api.DeleteRequest{ChannelID: args[0], MessageID: args[1], ForEveryone: everyone})
				if err != nil {
					return err
				}
				g.output(resp, func() { printAck(resp) })
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&everyone, "everyone", false, "revoke for every participant")
	return cmd
}

func forwardCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "forward <channel-id> <message-id> <to-channel-id>",
		Short: "Forward a text message to another conversation",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(func(ctx context.Context, c *api.Client) error {
				resp, err := c.Forward(ctx, &api.ForwardRequest{ChannelID: args[0], MessageID: args[1], To: args[2]})
				if err != nil {
					return err
				}
				g.output(resp, func() { fmt.Printf("Sent: %s\n", resp.Message.ID) })
				return nil
			})
		},
	}
}

func searchCmd(g *globalFlags) *cobra.Command {
	var (
		channel string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search the local message mirror",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(func(ctx context.Context, c *api.Client) error {
				resp, err := c.Search(ctx, &api.SearchRequest{Query: strings.Join(args, " "), ChannelID: channel, Limit: limit})
				if err != nil {
					return err
				}
				g.output(resp, func() {
					if len(resp.Results) == 0 {
						fmt.Println("No matches.")
						return
					}
					for _, hit := range resp.Results {
						fmt.Printf("%s  %-28s %s\n", hit.Message.Time().Format("2006-01-02 15:04"), hit.Message.ChannelID, hit.Snippet)
					}
				})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&channel, "chat", "", "restrict to one conversation")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum results")
	return cmd
}

func watchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [kind-prefix...]",
		Short: "Stream daemon events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.dial()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			stream, err := c.Watch(ctx, args...)
			if err != nil {
				return err
			}
			for {
				evt, err := stream.Recv()
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return nil
				}
				if err != nil {
					return err
				}
				if g.json {
					outputJSON(evt)
					continue
				}
				fmt.Printf("%s  %-24s %s\n", time.UnixMilli(evt.OccurredAtUnixMs).Format(time.TimeOnly), evt.Kind, evt.Payload)
			}
		},
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
