// ABOUTME: seed subcommand for smsrelay-admin
// ABOUTME: Loads a small sample directory for trying the relay locally

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389/smsrelay/internal/store"
)

var sampleContacts = []store.Contact{
	{Name: "John Smith", PhoneNumber: "+15551234567"},
	{Name: "Jane Doe", PhoneNumber: "+15559876543"},
	{Name: "Bob Johnson", PhoneNumber: "+15555555555"},
}

var sampleGroups = []store.Group{
	{Name: "Friends", Description: "Close friends"},
	{Name: "Family", Description: "Family members"},
	{Name: "Work", Description: "Work colleagues"},
}

// SeedResult counts what seeding created.
type SeedResult struct {
	Contacts int `json:"contacts"`
	Groups   int `json:"groups"`
}

func newSeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert sample contacts and groups; existing entries are left alone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(s store.Store) error {
				res, err := seed(cmd.Context(), s)
				if err != nil {
					return err
				}
				return opts.formatter(cmd.OutOrStdout()).Success(res, "Seeded %d contacts and %d groups", res.Contacts, res.Groups)
			})
		},
	}
}

func seed(ctx context.Context, dir store.Directory) (SeedResult, error) {
	var res SeedResult
	for _, c := range sampleContacts {
		err := dir.CreateContact(ctx, &c)
		switch {
		case errors.Is(err, store.ErrDuplicateContact):
		case err != nil:
			return res, fmt.Errorf("creating %s: %w", c.Name, err)
		default:
			res.Contacts++
		}
	}
	for _, g := range sampleGroups {
		err := dir.CreateGroup(ctx, &g)
		switch {
		case errors.Is(err, store.ErrDuplicateGroup):
		case err != nil:
			return res, fmt.Errorf("creating group %s: %w", g.Name, err)
		default:
			res.Groups++
		}
	}
	return res, nil
}
