package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"auto_blog_package_publisher/generator"
	"auto_blog_package_publisher/source"
)

type generateFlags struct {
	title      string
	body       string
	bodyFile   string
	url        string
	sourceName string
	sourceURL  string
	toggles    generator.Toggles
	asJSON     bool
	out        string
}

func newGenerateCmd() *cobra.Command {
	var f generateFlags
	f.toggles = generator.AllToggles()

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a blog package from a source article",
		Long: `Generate runs every pipeline stage for one source article and prints the
package. The source is given either as --title plus --body/--body-file, or
fetched from --url.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.title, "title", "", "source article title")
	flags.StringVar(&f.body, "body", "", "source article body")
	flags.StringVar(&f.bodyFile, "body-file", "", "read the source body from a file (- for stdin)")
	flags.StringVar(&f.url, "url", "", "fetch the source article from this URL")
	flags.StringVar(&f.sourceName, "source-name", "", "publication name of the source")
	flags.StringVar(&f.sourceURL, "source-url", "", "URL of the source (defaults to --url)")
	flags.BoolVar(&f.toggles.IncludeSocialTexts, "social-texts", true, "generate social post title and caption")
	flags.BoolVar(&f.toggles.IncludeStoryTeasers, "story-teasers", true, "generate story teasers")
	flags.BoolVar(&f.toggles.IncludeLocalizedVideo, "localized-video", true, "generate the localized video prompt")
	flags.BoolVar(&f.asJSON, "json", false, "print the package as JSON")
	flags.StringVar(&f.out, "out", "", "also write the package JSON to this file")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file", "url")
	return cmd
}

func runGenerate(cmd *cobra.Command, f generateFlags) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	req, err := buildRequest(cmd, a, f)
	if err != nil {
		return err
	}
	pipe, err := a.pipeline(ctx)
	if err != nil {
		return err
	}

	pkg := pipe.Run(ctx, req)

	if f.out != "" {
		raw, err := json.MarshalIndent(pkg, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(f.out, raw, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.out, err)
		}
	}
	w := cmd.OutOrStdout()
	if f.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(pkg); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(w, renderPackage(pkg))
	}
	if pkg.Fatal() {
		return errors.New("generation failed")
	}
	return nil
}

func buildRequest(cmd *cobra.Command, a *app, f generateFlags) (generator.Request, error) {
	if f.url != "" {
		art, err := source.NewFetcher(nil, a.log).Fetch(cmd.Context(), f.url)
		if err != nil {
			return generator.Request{}, err
		}
		req := art.Request(f.toggles)
		if f.title != "" {
			req.SourceTitle = f.title
		}
		if f.sourceName != "" {
			req.SourceName = f.sourceName
		}
		return req, nil
	}

	body := f.body
	if f.bodyFile != "" {
		var (
			raw []byte
			err error
		)
		if f.bodyFile == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(f.bodyFile)
		}
		if err != nil {
			return generator.Request{}, fmt.Errorf("read body: %w", err)
		}
		body = string(raw)
	}
	req := generator.Request{
		SourceTitle: f.title,
		SourceBody:  body,
		SourceName:  f.sourceName,
		SourceURL:   f.sourceURL,
		Toggles:     f.toggles,
	}
	if err := req.Validate(); err != nil {
		return generator.Request{}, fmt.Errorf("%w (use --title with --body, --body-file or --url)", err)
	}
	return req, nil
}
