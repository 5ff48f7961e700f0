// ABOUTME: groups subcommands for smsrelay-admin
// ABOUTME: Create and delete broadcast groups and edit their membership

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/smsrelay/internal/store"
)

// GroupView is the JSON shape of a group.
type GroupView struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	MemberCount int           `json:"member_count"`
	Members     []ContactView `json:"members,omitempty"`
}

func newGroupsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "groups",
		Aliases: []string{"group"},
		Short:   "Manage broadcast groups",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List groups with member counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(s store.Store) error {
				groups, err := s.ListGroups(cmd.Context())
				if err != nil {
					return err
				}
				views := make([]GroupView, 0, len(groups))
				for _, g := range groups {
					views = append(views, GroupView{ID: g.ID, Name: g.Name, Description: g.Description, MemberCount: g.MemberCount})
				}
				f := opts.formatter(cmd.OutOrStdout())
				return f.Emit(views, func(w io.Writer) {
					if len(views) == 0 {
						fmt.Fprintln(w, "No groups.")
						return
					}
					rows := make([][]any, 0, len(views))
					for _, v := range views {
						rows = append(rows, []any{v.Name, v.MemberCount, v.Description})
					}
					f.Table([]any{"NAME", "MEMBERS", "DESCRIPTION"}, rows)
				})
			})
		},
	}

	var description string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[0])
			if name == "" || strings.ContainsAny(name, " \t\n") {
				return errors.New("group names are a single word")
			}
			return opts.withStore(func(s store.Store) error {
				g := &store.Group{Name: name, Description: strings.TrimSpace(description)}
				if err := s.CreateGroup(cmd.Context(), g); err != nil {
					return err
				}
				return opts.formatter(cmd.OutOrStdout()).Success(GroupView{ID: g.ID, Name: g.Name, Description: g.Description}, "Created group %s", g.Name)
			})
		},
	}
	create.Flags().StringVarP(&description, "description", "d", "", "group description")

	show := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a group and its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(s store.Store) error {
				g, err := s.GetGroupByName(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("group %q: %w", args[0], err)
				}
				members, err := s.GetGroupMembers(cmd.Context(), g.ID)
				if err != nil {
					return err
				}
				view := GroupView{ID: g.ID, Name: g.Name, Description: g.Description, MemberCount: len(members)}
				for _, m := range members {
					view.Members = append(view.Members, contactView(m))
				}
				f := opts.formatter(cmd.OutOrStdout())
				return f.Emit(view, func(w io.Writer) {
					fmt.Fprintf(w, "%s (%d members)\n", view.Name, view.MemberCount)
					if view.Description != "" {
						fmt.Fprintln(w, view.Description)
					}
					if len(members) > 0 {
						fmt.Fprintln(w)
						rows := make([][]any, 0, len(view.Members))
						for _, m := range view.Members {
							rows = append(rows, []any{m.Name, m.PhoneNumber})
						}
						f.Table([]any{"NAME", "PHONE"}, rows)
					}
				})
			})
		},
	}

	remove := &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"delete"},
		Short:   "Delete a group; its contacts are kept",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(s store.Store) error {
				g, err := s.GetGroupByName(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("group %q: %w", args[0], err)
				}
				if err := s.DeleteGroup(cmd.Context(), g.ID); err != nil {
					return err
				}
				return opts.formatter(cmd.OutOrStdout()).Success(GroupView{ID: g.ID, Name: g.Name}, "Deleted group %s", g.Name)
			})
		},
	}

	addMember := &cobra.Command{
		Use:   "add <group> <contact>...",
		Short: "Add contacts to a group",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(s store.Store) error {
				g, err := s.GetGroupByName(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("group %q: %w", args[0], err)
				}
				added := make([]ContactView, 0, len(args)-1)
				for _, arg := range args[1:] {
					c, err := resolveContact(cmd.Context(), s, arg)
					if err != nil {
						return err
					}
					if err := s.AddGroupMember(cmd.Context(), g.ID, c.ID); err != nil {
						return err
					}
					added = append(added, contactView(c))
				}
				names := make([]string, 0, len(added))
				for _, c := range added {
					names = append(names, c.Name)
				}
				return opts.formatter(cmd.OutOrStdout()).Success(added, "Added %s to %s", strings.Join(names, ", "), g.Name)
			})
		},
	}

	removeMember := &cobra.Command{
		Use:   "remove <group> <contact>",
		Short: "Remove a contact from a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(s store.Store) error {
				g, err := s.GetGroupByName(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("group %q: %w", args[0], err)
				}
				c, err := resolveContact(cmd.Context(), s, args[1])
				if err != nil {
					return err
				}
				if err := s.RemoveGroupMember(cmd.Context(), g.ID, c.ID); err != nil {
					return fmt.Errorf("%s is not in %s: %w", c.Name, g.Name, err)
				}
				return opts.formatter(cmd.OutOrStdout()).Success(contactView(c), "Removed %s from %s", c.Name, g.Name)
			})
		},
	}

	cmd.AddCommand(list, create, show, remove, addMember, removeMember)
	return cmd
}
