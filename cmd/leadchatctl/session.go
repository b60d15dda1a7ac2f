package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/matheus3301/leadchat/internal/api"
	"github.com/matheus3301/leadchat/internal/wa"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

func statusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(func(ctx context.Context, c *api.Client) error {
				resp, err := c.Status(ctx)
				if err != nil {
					return err
				}
				g.output(resp, func() {
					fmt.Printf("Session:  %s\n", resp.Session)
					fmt.Printf("Provider: %s\n", resp.Provider)
					if resp.Owner != "" {
						fmt.Printf("Owner:    %s\n", resp.Owner)
					}
					if resp.PhoneNumber != "" {
						fmt.Printf("Phone:    %s\n", resp.PhoneNumber)
					}
					fmt.Printf("Status:   %s (since %s)\n", resp.State, time.UnixMilli(resp.SinceUnixMs).Format(time.DateTime))
					fmt.Printf("Uptime:   %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
					fmt.Printf("Unread:   %d\n", resp.Unread)
					if resp.Counts != nil {
						fmt.Printf("Mirror:   %d chats, %d messages, %d records, %d groups\n",
							resp.Counts.Chats, resp.Counts.Messages, resp.Counts.Records, resp.Counts.Groups)
					}
				})
				return nil
			})
		},
	}
}

func authCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Pair the device by scanning QR codes in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.dial()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			stream, err := c.StartAuth(ctx)
			if err != nil {
				return err
			}
			for {
				evt, err := stream.Recv()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				if g.json {
					outputJSON(evt)
					continue
				}
				switch wa.AuthEventType(evt.Type) {
				case wa.AuthEventQRCode:
					if err := printQR(evt.QRCode); err != nil {
						return err
					}
					fmt.Println("Scan the code with WhatsApp > Linked devices.")
				case wa.AuthEventAuthenticated:
					fmt.Println("Device paired.")
					return nil
				default:
					fmt.Printf("%s: %s\n", evt.Type, evt.Message)
				}
			}
		},
	}
}

func printQR(content string) error {
	q, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return fmt.Errorf("render qr code: %w", err)
	}
	fmt.Print(q.ToSmallString(false))
	return nil
}

func ackCmd(g *globalFlags, use, short string, call func(*api.Client, context.Context) (*api.Ack, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(func(ctx context.Context, c *api.Client) error {
				resp, err := call(c, ctx)
				if err != nil {
					return err
				}
				g.output(resp, func() { printAck(resp) })
				return nil
			})
		},
	}
}

func printAck(a *api.Ack) {
	if a.Message != "" {
		fmt.Printf("Success: %v - %s\n", a.OK, a.Message)
		return
	}
	fmt.Printf("Success: %v\n", a.OK)
}

func connectCmd(g *globalFlags) *cobra.Command {
	return ackCmd(g, "connect", "Connect the paired device", (*api.Client).Connect)
}

func disconnectCmd(g *globalFlags) *cobra.Command {
	return ackCmd(g, "disconnect", "Disconnect without unpairing", (*api.Client).Disconnect)
}

func logoutCmd(g *globalFlags) *cobra.Command {
	return ackCmd(g, "logout", "Unpair the device", (*api.Client).Logout)
}
