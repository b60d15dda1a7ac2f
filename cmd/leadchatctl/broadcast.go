package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/matheus3301/leadchat/internal/api"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func groupsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List recipient groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(func(ctx context.Context, c *api.Client) error {
				resp, err := c.Groups(ctx)
				if err != nil {
					return err
				}
				g.output(resp, func() {
					if len(resp.Groups) == 0 {
						fmt.Println("No groups.")
						return
					}
					for _, grp := range resp.Groups {
						fmt.Printf("%-24s %-32s %d members\n", grp.ID, grp.Name, len(grp.Members))
					}
				})
				return nil
			})
		},
	}
}

// sourceFlags select and filter a recipient source.
type sourceFlags struct {
	group    string
	all      bool
	statuses []string
	services []string
	from     string
	to       string
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.group, "group", "", "load recipients from a group")
	cmd.Flags().BoolVar(&s.all, "all", false, "load every channel with a linked record")
	cmd.Flags().StringSliceVar(&s.statuses, "status", nil, "keep only these record statuses")
	cmd.Flags().StringSliceVar(&s.services, "service", nil, "keep only these record services")
	cmd.Flags().StringVar(&s.from, "from", "", "keep records dated on or after YYYY-MM-DD")
	cmd.Flags().StringVar(&s.to, "to", "", "keep records dated on or before YYYY-MM-DD")
}

func (s *sourceFlags) request() (*api.ResolveRequest, error) {
	if s.group == "" && !s.all {
		return nil, errors.New("one of --group or --all is required")
	}
	if s.group != "" && s.all {
		return nil, errors.New("--group and --all are mutually exclusive")
	}
	return &api.ResolveRequest{
		GroupID:   s.group,
		AllLinked: s.all,
		Statuses:  s.statuses,
		Services:  s.services,
		From:      s.from,
		To:        s.to,
	}, nil
}

func resolveCmd(g *globalFlags) *cobra.Command {
	src := &sourceFlags{}
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Preview the recipients a filter selects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := src.request()
			if err != nil {
				return err
			}
			return g.run(func(ctx context.Context, c *api.Client) error {
				resp, err := c.Resolve(ctx, req)
				if err != nil {
					return err
				}
				g.output(resp, func() { printRecipients(resp) })
				return nil
			})
		},
	}
	src.register(cmd)
	return cmd
}

func printRecipients(resp *api.ResolveResponse) {
	for _, r := range resp.Recipients {
		name, status, service := "", "", ""
		if r.Record != nil {
			name, status, service = r.Record.Name, r.Record.Status, r.Record.Service
		}
		fmt.Printf("%-32s %-24s %-12s %s\n", r.ChannelID, name, status, service)
	}
	fmt.Printf("%d of %d recipients\n", len(resp.Recipients), resp.Total)
	fmt.Printf("statuses: %s\n", strings.Join(resp.Statuses, ", "))
	fmt.Printf("services: %s\n", strings.Join(resp.Services, ", "))
}

func dispatchCmd(g *globalFlags) *cobra.Command {
	var (
		src         = &sourceFlags{}
		texts       []string
		files       []string
		only        []string
		interval    string
		bigInterval string
		untilBig    int
	)
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Broadcast messages to filtered recipients",
		Long: "Broadcast one or more items to the recipients selected by the source flags.\n" +
			"Text may use the {{name}}, {{fullName}} and {{firstName}} placeholders.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := src.request()
			if err != nil {
				return err
			}
			items := make([]provider.Item, 0, len(texts)+len(files))
			for _, t := range texts {
				items = append(items, provider.Item{Text: t})
			}
			for _, f := range files {
				media, err := loadMedia(f, "")
				if err != nil {
					return err
				}
				items = append(items, provider.Item{Media: &media})
			}
			return g.run(func(ctx context.Context, c *api.Client) error {
				if _, err := c.Resolve(ctx, req); err != nil {
					return err
				}
				resp, err := c.Dispatch(ctx, &api.DispatchRequest{
					Items:                    items,
					ChannelIDs:               only,
					Interval:                 interval,
					BigInterval:              bigInterval,
					MessagesUntilBigInterval: untilBig,
				})
				if err != nil {
					return err
				}
				g.output(resp, func() {
					fmt.Printf("Accepted: %v, %d recipients", resp.Ack.Accepted, resp.Ack.Recipients)
					if resp.Ack.JobID != "" {
						fmt.Printf(", job %s", resp.Ack.JobID)
					}
					fmt.Println()
				})
				return nil
			})
		},
	}
	src.register(cmd)
	cmd.Flags().StringArrayVarP(&texts, "text", "m", nil, "text item (repeatable)")
	cmd.Flags().StringArrayVar(&files, "file", nil, "media item from a file (repeatable)")
	cmd.Flags().StringSliceVar(&only, "only", nil, "send only to these channel ids among the filtered")
	cmd.Flags().StringVar(&interval, "interval", "", "seconds between recipients")
	cmd.Flags().StringVar(&bigInterval, "big-interval", "", "seconds of the longer pause")
	cmd.Flags().IntVar(&untilBig, "until-big", 0, "recipients between longer pauses")
	return cmd
}

func importCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import linked records and groups into the local store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var req api.ImportRequest
			if err := yaml.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			return g.run(func(ctx context.Context, c *api.Client) error {
				resp, err := c.ImportRecords(ctx, &req)
				if err != nil {
					return err
				}
				g.output(resp, func() { fmt.Printf("Imported %d records and %d groups\n", resp.Records, resp.Groups) })
				return nil
			})
		},
	}
}
