package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"auto_blog_package_publisher/generator"
	"auto_blog_package_publisher/publisher"
)

func newPublishCmd() *cobra.Command {
	var (
		artifactID  string
		packageFile string
		fromPantry  bool
		image       string
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a generated package to WordPress as a draft",
		Long: `Publish loads a package, either a saved artifact (--artifact) or a package
JSON file written by "generate --out" (--package), and creates a WordPress
draft with tags, Rank Math meta and the featured image.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, artifactID != "" && !fromPantry)
			if err != nil {
				return err
			}
			defer a.log.Sync()

			var pkg generator.Package
			switch {
			case artifactID != "":
				rec, err := a.loadRecord(ctx, artifactID, fromPantry)
				if err != nil {
					return err
				}
				if pkg, err = generator.PackageFromRecord(rec); err != nil {
					return err
				}
			case packageFile != "":
				raw, err := os.ReadFile(packageFile)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(raw, &pkg); err != nil {
					return fmt.Errorf("decode %s: %w", packageFile, err)
				}
			default:
				return errors.New("one of --artifact or --package is required")
			}
			if pkg.Fatal() {
				return fmt.Errorf("package %s failed to generate: %s", pkg.RunID, pkg.Error)
			}

			fields := publisher.FromPackage(pkg, a.cfg.Site.GraphicsDir)
			if image != "" {
				fields.ImagePath = image
			}
			w := cmd.OutOrStdout()
			if dryRun {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(fields)
			}
			if !a.cfg.WordPressConfigured() {
				return errors.New("wordpress url, username and app_password must be configured")
			}
			pub, err := publisher.New(a.cfg.WordPress, nil, a.log)
			if err != nil {
				return err
			}
			res := pub.Publish(ctx, fields)
			fmt.Fprintln(w, renderPublishResult(res))
			if !res.Success {
				return errors.New("publish failed")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&artifactID, "artifact", "", "saved artifact id or name")
	f.BoolVar(&fromPantry, "pantry", false, "load --artifact from the pantry mirror")
	f.StringVar(&packageFile, "package", "", "package JSON file")
	f.StringVar(&image, "image", "", "featured image path (overrides the graphics dir lookup)")
	f.BoolVar(&dryRun, "dry-run", false, "print the publish fields without calling WordPress")
	cmd.MarkFlagsMutuallyExclusive("artifact", "package")
	return cmd
}
