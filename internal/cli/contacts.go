// ABOUTME: contacts subcommands for smsrelay-admin
// ABOUTME: List, search, add, rename and remove directory contacts

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/smsrelay/internal/phone"
	"github.com/2389/smsrelay/internal/store"
)

// ContactView is the JSON shape of a contact.
type ContactView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

func contactView(c *store.Contact) ContactView {
	return ContactView{ID: c.ID, Name: c.Name, PhoneNumber: c.PhoneNumber}
}

func newContactsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "contacts",
		Aliases: []string{"contact"},
		Short:   "Manage contacts",
	}

	var search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(s store.Store) error {
				var (
					contacts []*store.Contact
					err      error
				)
				if search != "" {
					contacts, err = store.SearchContacts(cmd.Context(), s, search)
				} else {
					contacts, err = s.ListContacts(cmd.Context())
				}
				if err != nil {
					return err
				}
				return printContacts(opts.formatter(cmd.OutOrStdout()), contacts)
			})
		},
	}
	list.Flags().StringVarP(&search, "search", "s", "", "only contacts whose name or number contains this")

	add := &cobra.Command{
		Use:   "add <name> <phone>",
		Short: "Add a contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := store.NormalizeName(args[0])
			if name == "" {
				return errors.New("name is required")
			}
			number, err := phone.Parse(args[1])
			if err != nil {
				return err
			}
			return opts.withStore(func(s store.Store) error {
				c := &store.Contact{Name: name, PhoneNumber: number}
				if err := s.CreateContact(cmd.Context(), c); err != nil {
					return err
				}
				return opts.formatter(cmd.OutOrStdout()).Success(contactView(c), "Added %s (%s)", c.Name, c.PhoneNumber)
			})
		},
	}

	rename := &cobra.Command{
		Use:   "rename <contact> <new-name>",
		Short: "Rename a contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := store.NormalizeName(args[1])
			if name == "" {
				return errors.New("name is required")
			}
			return opts.withStore(func(s store.Store) error {
				c, err := resolveContact(cmd.Context(), s, args[0])
				if err != nil {
					return err
				}
				if err := s.RenameContact(cmd.Context(), c.ID, name); err != nil {
					return err
				}
				old := c.Name
				c.Name = name
				return opts.formatter(cmd.OutOrStdout()).Success(contactView(c), "Renamed %s to %s", old, name)
			})
		},
	}

	remove := &cobra.Command{
		Use:     "rm <contact>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove a contact and its group memberships",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(s store.Store) error {
				c, err := resolveContact(cmd.Context(), s, args[0])
				if err != nil {
					return err
				}
				if err := s.DeleteContact(cmd.Context(), c.ID); err != nil {
					return err
				}
				return opts.formatter(cmd.OutOrStdout()).Success(contactView(c), "Removed %s (%s)", c.Name, c.PhoneNumber)
			})
		},
	}

	cmd.AddCommand(list, add, rename, remove)
	return cmd
}

func printContacts(f *OutputFormatter, contacts []*store.Contact) error {
	views := make([]ContactView, 0, len(contacts))
	for _, c := range contacts {
		views = append(views, contactView(c))
	}
	return f.Emit(views, func(w io.Writer) {
		if len(views) == 0 {
			fmt.Fprintln(w, "No contacts.")
			return
		}
		rows := make([][]any, 0, len(views))
		for _, v := range views {
			rows = append(rows, []any{v.ID, v.Name, v.PhoneNumber})
		}
		f.Table([]any{"ID", "NAME", "PHONE"}, rows)
	})
}

// resolveContact accepts a phone number, a numeric ID, or an exact name.
func resolveContact(ctx context.Context, dir store.Directory, arg string) (*store.Contact, error) {
	if number, err := phone.Parse(arg); err == nil {
		c, err := dir.GetContactByPhone(ctx, number)
		if err == nil || !errors.Is(err, store.ErrNotFound) {
			return c, err
		}
	}
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		c, err := dir.GetContact(ctx, id)
		if err == nil || !errors.Is(err, store.ErrNotFound) {
			return c, err
		}
	}

	matches, err := store.FindContactsByName(ctx, dir, arg)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("contact %q: %w", arg, store.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		numbers := make([]string, 0, len(matches))
		for _, m := range matches {
			numbers = append(numbers, m.PhoneNumber)
		}
		return nil, fmt.Errorf("%q matches several contacts (%s); use a phone number", arg, strings.Join(numbers, ", "))
	}
}
