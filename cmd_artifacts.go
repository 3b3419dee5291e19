package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"auto_blog_package_publisher/artifact"
	"auto_blog_package_publisher/generator"
)

func newArtifactsCmd() *cobra.Command {
	var fromPantry bool
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "List and show saved packages",
	}
	cmd.PersistentFlags().BoolVar(&fromPantry, "pantry", false, "read from the pantry mirror instead of the primary store")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved artifact names, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.log.Sync()
			var names []string
			if fromPantry {
				p, err := a.pantry()
				if err != nil {
					return err
				}
				names, err = p.Baskets(ctx)
				if err != nil {
					return err
				}
			} else {
				if a.store == nil {
					return errStorageDisabled
				}
				if names, err = a.store.List(ctx); err != nil {
					return err
				}
			}
			w := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(w, "no artifacts saved yet")
				return nil
			}
			for _, n := range names {
				fmt.Fprintln(w, n)
			}
			return nil
		},
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show <id-or-name>",
		Short: "Show one saved package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.log.Sync()
			rec, err := a.loadRecord(ctx, args[0], fromPantry)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			pkg, err := generator.PackageFromRecord(rec)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, renderRecordHeader(rec))
			fmt.Fprintln(w, renderPackage(pkg))
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print the full record (raw outputs included) as JSON")

	cmd.AddCommand(list, show)
	return cmd
}

var errStorageDisabled = errors.New("artifact storage is disabled (storage.backend=none)")

func (a *app) pantry() (*artifact.Pantry, error) {
	if m, ok := a.store.(*artifact.Mirrored); ok {
		return m.Pantry(), nil
	}
	if a.cfg.Storage.PantryID == "" {
		return nil, errors.New("storage.pantry_id is not set")
	}
	return artifact.NewPantry(a.cfg.Storage.PantryID, nil), nil
}

func (a *app) loadRecord(ctx context.Context, id string, fromPantry bool) (artifact.Record, error) {
	if fromPantry {
		p, err := a.pantry()
		if err != nil {
			return artifact.Record{}, err
		}
		return p.Record(ctx, id)
	}
	if a.store == nil {
		return artifact.Record{}, errStorageDisabled
	}
	return a.store.Get(ctx, id)
}
