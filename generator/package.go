package generator

import (
	"encoding/json"
	"fmt"

	"auto_blog_package_publisher/artifact"
)

// StoryTeasers is the three-part story sub-record. On failure every text
// field holds the same placeholder and RawOutput keeps whatever the model
// returned.
type StoryTeasers struct {
	MainTitle string `json:"main_title"`
	Subtitle  string `json:"subtitle"`
	BodyText  string `json:"body_text"`
	Error     string `json:"error,omitempty"`
	RawOutput string `json:"raw_output,omitempty"`
}

// SocialAnalysis holds the values derived from the generated blog post.
type SocialAnalysis struct {
	Topic        string   `json:"topic"`
	KeyTakeaways []string `json:"key_takeaways"`
	CoreEmotion  string   `json:"core_emotion"`
	CTAWord      string   `json:"cta_word"`
	Error        string   `json:"error,omitempty"`
}

// Package 是一次运行的完整产出；除致命错误外所有字段都有值（内容或占位符）。
type Package struct {
	RunID string `json:"run_id"`

	Title                   string   `json:"title"`
	Content                 string   `json:"content"`
	Slug                    string   `json:"slug"`
	SEOTitle                string   `json:"seo_title"`
	MetaDescription         string   `json:"meta_description"`
	AltText                 string   `json:"alt_text"`
	PrimaryFocusKeyword     string   `json:"primary_focus_keyword"`
	SecondaryFocusKeyword   string   `json:"secondary_focus_keyword"`
	AdditionalFocusKeywords []string `json:"additional_focus_keywords"`
	Tags                    []string `json:"tags"`
	Filename                string   `json:"filename"`

	ImagePrompt                 string `json:"image_prompt"`
	SocialStaticImagePrompt     string `json:"social_static_image_prompt"`
	SocialVideoReadyImagePrompt string `json:"social_video_ready_image_prompt"`

	SocialPostTitle   string `json:"social_post_title"`
	SocialPostCaption string `json:"social_post_caption"`
	SocialVideoPrompt string `json:"social_video_prompt"`

	StoryTeasers         *StoryTeasers   `json:"story_teasers"`
	LocalizedVideoPrompt string          `json:"localized_video_prompt"`
	SocialAnalysis       *SocialAnalysis `json:"social_analysis"`

	Stages []StageReport `json:"stages,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Fatal reports whether the run aborted at the blog stage.
func (p Package) Fatal() bool {
	return p.Error != ""
}

type packageJSON Package

// MarshalJSON 致命错误时只输出 run_id / error / stages。
func (p Package) MarshalJSON() ([]byte, error) {
	if p.Fatal() {
		return json.Marshal(struct {
			RunID  string        `json:"run_id"`
			Error  string        `json:"error"`
			Stages []StageReport `json:"stages,omitempty"`
		}{p.RunID, p.Error, p.Stages})
	}
	return json.Marshal(packageJSON(p))
}

// Fields exposes the package as the flat mapping presentation code reads by
// documented key name.
func (p Package) Fields() map[string]any {
	if p.Fatal() {
		return map[string]any{"run_id": p.RunID, "error": p.Error}
	}
	m := map[string]any{
		"run_id":                          p.RunID,
		"title":                           p.Title,
		"content":                         p.Content,
		"slug":                            p.Slug,
		"seo_title":                       p.SEOTitle,
		"meta_description":                p.MetaDescription,
		"alt_text":                        p.AltText,
		"primary_focus_keyword":           p.PrimaryFocusKeyword,
		"secondary_focus_keyword":         p.SecondaryFocusKeyword,
		"additional_focus_keywords":       p.AdditionalFocusKeywords,
		"tags":                            p.Tags,
		"filename":                        p.Filename,
		"image_prompt":                    p.ImagePrompt,
		"social_static_image_prompt":      p.SocialStaticImagePrompt,
		"social_video_ready_image_prompt": p.SocialVideoReadyImagePrompt,
		"social_post_title":               p.SocialPostTitle,
		"social_post_caption":             p.SocialPostCaption,
		"social_video_prompt":             p.SocialVideoPrompt,
		"localized_video_prompt":          p.LocalizedVideoPrompt,
	}
	if p.StoryTeasers != nil {
		m["story_teasers"] = map[string]any{
			"main_title": p.StoryTeasers.MainTitle,
			"subtitle":   p.StoryTeasers.Subtitle,
			"body_text":  p.StoryTeasers.BodyText,
			"error":      p.StoryTeasers.Error,
			"raw_output": p.StoryTeasers.RawOutput,
		}
	}
	if p.SocialAnalysis != nil {
		m["social_analysis"] = map[string]any{
			"topic":         p.SocialAnalysis.Topic,
			"key_takeaways": p.SocialAnalysis.KeyTakeaways,
			"core_emotion":  p.SocialAnalysis.CoreEmotion,
			"cta_word":      p.SocialAnalysis.CTAWord,
			"error":         p.SocialAnalysis.Error,
		}
	}
	return m
}

// Placeholders lists the top-level text fields that carry a placeholder
// instead of generated content, keyed by field name.
func (p Package) Placeholders() map[string]PlaceholderReason {
	out := map[string]PlaceholderReason{}
	for k, v := range p.Fields() {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if r := ClassifyPlaceholder(s); r != ReasonNone {
			out[k] = r
		}
	}
	if p.StoryTeasers != nil && p.StoryTeasers.Error != "" {
		out["story_teasers"] = ClassifyPlaceholder(p.StoryTeasers.Error)
	}
	if p.SocialAnalysis != nil && p.SocialAnalysis.Error != "" {
		out["social_analysis"] = ClassifyPlaceholder(p.SocialAnalysis.Error)
	}
	return out
}

// PackageFromRecord decodes the package stored in an artifact record.
func PackageFromRecord(rec artifact.Record) (Package, error) {
	var p Package
	if len(rec.Package) == 0 {
		return p, fmt.Errorf("artifact %s has no package", rec.Name)
	}
	if err := json.Unmarshal(rec.Package, &p); err != nil {
		return p, fmt.Errorf("decode package of %s: %w", rec.Name, err)
	}
	return p, nil
}
