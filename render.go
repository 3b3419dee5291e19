package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"auto_blog_package_publisher/artifact"
	"auto_blog_package_publisher/generator"
	"auto_blog_package_publisher/publisher"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#101F38")).Background(lipgloss.Color("#8BC34A")).Padding(0, 1)
	labelStyle   = lipgloss.NewStyle().Bold(true)
	skippedStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D9534F"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#5CB85C"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// styledValue 按占位原因着色：跳过为灰色，失败为红色。
func styledValue(v string) string {
	switch generator.ClassifyPlaceholder(v) {
	case generator.ReasonSkippedByUser:
		return skippedStyle.Render(v)
	case generator.ReasonUpstreamFailed, generator.ReasonGenerationError:
		return errorStyle.Render(v)
	}
	return v
}

type row struct {
	label string
	value string
}

func section(title string, rows []row) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render(title))
	b.WriteString("\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(r.label+":"), styledValue(r.value))
	}
	return b.String()
}

func renderPackage(pkg generator.Package) string {
	if pkg.Fatal() {
		return boxStyle.Render(errorStyle.Render(pkg.Error) + "\n" + labelStyle.Render("run: ") + pkg.RunID)
	}
	var parts []string
	parts = append(parts, section("Blog post", []row{
		{"Title", pkg.Title},
		{"Slug", pkg.Slug},
		{"SEO title", pkg.SEOTitle},
		{"Meta description", pkg.MetaDescription},
		{"Primary keyword", pkg.PrimaryFocusKeyword},
		{"Secondary keyword", pkg.SecondaryFocusKeyword},
		{"Additional keywords", strings.Join(pkg.AdditionalFocusKeywords, ", ")},
		{"Tags", strings.Join(pkg.Tags, ", ")},
		{"Alt text", pkg.AltText},
		{"Filename", pkg.Filename},
	}))
	parts = append(parts, boxStyle.Render(pkg.Content))
	parts = append(parts, section("Image prompts", []row{
		{"Thumbnail", pkg.ImagePrompt},
		{"Social static", pkg.SocialStaticImagePrompt},
		{"Social video-ready", pkg.SocialVideoReadyImagePrompt},
	}))
	social := []row{
		{"Post title", pkg.SocialPostTitle},
		{"Caption", pkg.SocialPostCaption},
		{"Video prompt", pkg.SocialVideoPrompt},
		{"Localized video prompt", pkg.LocalizedVideoPrompt},
	}
	if a := pkg.SocialAnalysis; a != nil {
		if a.Error != "" {
			social = append(social, row{"Analysis", a.Error})
		} else {
			social = append(social, row{"Topic", a.Topic}, row{"Takeaways", strings.Join(a.KeyTakeaways, " | ")})
		}
	}
	parts = append(parts, section("Social", social))
	if st := pkg.StoryTeasers; st != nil {
		parts = append(parts, section("Story teasers", []row{
			{"Main title", st.MainTitle},
			{"Subtitle", st.Subtitle},
			{"Body", st.BodyText},
		}))
	}
	parts = append(parts, renderStages(pkg.Stages))
	return strings.Join(parts, "\n")
}

func renderStages(reports []generator.StageReport) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render("Stages"))
	b.WriteString("\n")
	for _, r := range reports {
		status := string(r.Status)
		switch r.Status {
		case generator.StatusSucceeded:
			status = okStyle.Render(status)
		case generator.StatusFailedFatal, generator.StatusFailedRecoverable:
			status = errorStyle.Render(status)
		case generator.StatusSkipped:
			status = skippedStyle.Render(status)
		}
		line := fmt.Sprintf("%-24s %s", r.Stage, status)
		if r.Step != "" {
			line += "  via " + string(r.Step)
		}
		if r.Reason != generator.ReasonNone && r.Status != generator.StatusSucceeded {
			line += "  (" + string(r.Reason) + ")"
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func renderRecordHeader(rec artifact.Record) string {
	status := okStyle.Render(string(rec.Status))
	if rec.Status == artifact.StatusError {
		status = errorStyle.Render(string(rec.Status))
	}
	header := fmt.Sprintf("%s  #%d  %s  %s", labelStyle.Render(rec.Name), rec.ID, rec.Timestamp.Format("2006-01-02 15:04:05"), status)
	if rec.PantryBasket != "" {
		header += "  pantry:" + rec.PantryBasket
	}
	return header
}

func renderPublishResult(res publisher.Result) string {
	if !res.Success {
		return boxStyle.Render(errorStyle.Render("Publish failed: " + res.Error))
	}
	lines := []string{
		okStyle.Render(fmt.Sprintf("Draft %d created", res.ID)),
		labelStyle.Render("Preview: ") + res.PreviewURL,
		labelStyle.Render("Edit:    ") + res.EditURL,
	}
	for _, w := range res.Warnings {
		lines = append(lines, errorStyle.Render("warning: ")+w)
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
