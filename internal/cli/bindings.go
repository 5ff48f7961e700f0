// ABOUTME: bindings and broadcasts subcommands for smsrelay-admin
// ABOUTME: Read-only views of thread bindings and the broadcast log

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/2389/smsrelay/internal/phone"
	"github.com/2389/smsrelay/internal/store"
)

// BindingView is the JSON shape of a thread binding.
type BindingView struct {
	Seq         int64  `json:"seq"`
	PhoneNumber string `json:"phone_number"`
	ChannelID   string `json:"channel_id"`
	ThreadID    string `json:"thread_id"`
	DisplayName string `json:"display_name,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// BroadcastView is the JSON shape of a broadcast log entry.
type BroadcastView struct {
	ID         string         `json:"id"`
	Group      string         `json:"group,omitempty"`
	Body       string         `json:"body"`
	Status     string         `json:"status"`
	Sent       int            `json:"sent"`
	Failed     int            `json:"failed"`
	CreatedAt  string         `json:"created_at"`
	Deliveries []DeliveryView `json:"deliveries,omitempty"`
}

// DeliveryView is one recipient of a broadcast.
type DeliveryView struct {
	PhoneNumber       string `json:"phone_number"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

func newBindingsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bindings [phone]",
		Short: "Show active thread bindings, or one number's binding history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(s store.Store) error {
				var (
					bindings []*store.ThreadBinding
					err      error
				)
				if len(args) == 1 {
					number, perr := phone.Parse(args[0])
					if perr != nil {
						return perr
					}
					bindings, err = s.ListThreadBindings(cmd.Context(), number)
				} else {
					bindings, err = s.ListActiveThreadBindings(cmd.Context())
				}
				if err != nil {
					return err
				}

				views := make([]BindingView, 0, len(bindings))
				for _, b := range bindings {
					views = append(views, BindingView{
						Seq: b.Seq, PhoneNumber: b.PhoneNumber, ChannelID: b.ChannelID,
						ThreadID: b.ThreadID, DisplayName: b.DisplayName, CreatedAt: stamp(b.CreatedAt),
					})
				}
				f := opts.formatter(cmd.OutOrStdout())
				return f.Emit(views, func(w io.Writer) {
					if len(views) == 0 {
						fmt.Fprintln(w, "No bindings.")
						return
					}
					rows := make([][]any, 0, len(views))
					for _, v := range views {
						rows = append(rows, []any{v.PhoneNumber, v.DisplayName, v.ChannelID + "/" + v.ThreadID, v.CreatedAt})
					}
					f.Table([]any{"PHONE", "NAME", "THREAD", "SINCE"}, rows)
				})
			})
		},
	}
}

func newBroadcastsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "broadcasts",
		Short: "Inspect the broadcast log",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent broadcasts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			return opts.withStore(func(s store.Store) error {
				entries, err := s.ListBroadcasts(cmd.Context(), limit)
				if err != nil {
					return err
				}
				views := make([]BroadcastView, 0, len(entries))
				for _, b := range entries {
					views = append(views, broadcastView(b))
				}
				f := opts.formatter(cmd.OutOrStdout())
				return f.Emit(views, func(w io.Writer) {
					if len(views) == 0 {
						fmt.Fprintln(w, "No broadcasts.")
						return
					}
					rows := make([][]any, 0, len(views))
					for _, v := range views {
						target := v.Group
						if target == "" {
							target = "(direct)"
						}
						rows = append(rows, []any{v.ID, v.CreatedAt, target, v.Status, fmt.Sprintf("%d/%d", v.Sent, v.Sent+v.Failed)})
					}
					f.Table([]any{"ID", "WHEN", "TARGET", "STATUS", "SENT"}, rows)
				})
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one broadcast with per-recipient outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(s store.Store) error {
				b, err := s.GetBroadcast(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("broadcast %q: %w", args[0], err)
				}
				v := broadcastView(b)
				f := opts.formatter(cmd.OutOrStdout())
				return f.Emit(v, func(w io.Writer) {
					fmt.Fprintf(w, "%s  %s  %s\n", v.ID, v.CreatedAt, v.Status)
					fmt.Fprintf(w, "%q\n\n", v.Body)
					rows := make([][]any, 0, len(v.Deliveries))
					for _, d := range v.Deliveries {
						result := d.ProviderMessageID
						if d.Error != "" {
							result = "error: " + d.Error
						}
						rows = append(rows, []any{d.PhoneNumber, result})
					}
					f.Table([]any{"PHONE", "RESULT"}, rows)
				})
			})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func broadcastView(b *store.Broadcast) BroadcastView {
	v := BroadcastView{
		ID: b.ID, Group: b.GroupName, Body: b.Body, Status: b.Status,
		Sent: b.Sent, Failed: b.Failed, CreatedAt: stamp(b.CreatedAt),
	}
	for _, d := range b.Deliveries {
		v.Deliveries = append(v.Deliveries, DeliveryView{PhoneNumber: d.PhoneNumber, ProviderMessageID: d.ProviderMessageID, Error: d.Error})
	}
	return v
}
