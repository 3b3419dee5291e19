package generator

import (
	"errors"
	"strings"

	"auto_blog_package_publisher/recovery"
)

// Stage ids, in table order.
const (
	StageBlog            = "blog"
	StageThumbnailImage  = "blog_thumbnail_image_prompt"
	StageStaticImage     = "social_static_image_prompt"
	StageVideoReadyImage = "social_video_ready_image_prompt"
	StageAnalysis        = "social_analysis"
	StageSocialTexts     = "social_post_texts"
	StageSocialVideo     = "social_video_prompt"
	StageStoryTeasers    = "story_teasers"
	StageLocalizedVideo  = "localized_video_prompt"
)

var (
	BlogSchema = recovery.NewSchema("blog",
		recovery.Field{Name: "primary_focus_keyword", Type: recovery.String},
		recovery.Field{Name: "secondary_focus_keyword", Type: recovery.String},
		recovery.Field{Name: "additional_focus_keywords", Type: recovery.StringList},
		recovery.Field{Name: "title", Type: recovery.String},
		recovery.Field{Name: "seo_title", Type: recovery.String},
		recovery.Field{Name: "slug", Type: recovery.String},
		recovery.Field{Name: "meta_description", Type: recovery.String},
		recovery.Field{Name: "alt_text", Type: recovery.String},
		recovery.Field{Name: "tags", Type: recovery.StringList},
		recovery.Field{Name: "content", Type: recovery.String},
	)
	AnalysisSchema = recovery.NewSchema("social_analysis",
		recovery.Field{Name: "derived_blog_topic", Type: recovery.String},
		recovery.Field{Name: "derived_key_takeaways", Type: recovery.StringList},
		recovery.Field{Name: "derived_core_emotion", Type: recovery.String},
		recovery.Field{Name: "derived_cta_word", Type: recovery.String},
	)
	SocialTextsSchema = recovery.NewSchema("social_post_texts",
		recovery.Field{Name: "social_post_title", Type: recovery.String},
		recovery.Field{Name: "social_post_caption", Type: recovery.String},
	)
	StoryTeaserSchema = recovery.NewSchema("story_teasers",
		recovery.Field{Name: "story_main_title", Type: recovery.String},
		recovery.Field{Name: "story_subtitle", Type: recovery.String},
		recovery.Field{Name: "story_body_text", Type: recovery.String},
	)
)

// StageStatus 阶段状态机：not-started → running → succeeded | failed-* ，或 skipped。
type StageStatus string

const (
	StatusNotStarted        StageStatus = "not-started"
	StatusRunning           StageStatus = "running"
	StatusSucceeded         StageStatus = "succeeded"
	StatusFailedRecoverable StageStatus = "failed-recoverable"
	StatusFailedFatal       StageStatus = "failed-fatal"
	StatusSkipped           StageStatus = "skipped"
)

func (s StageStatus) terminal() bool {
	return s != StatusNotStarted && s != StatusRunning
}

// StageReport is the structured outcome of one stage in a run.
type StageReport struct {
	Stage      string            `json:"stage"`
	Status     StageStatus       `json:"status"`
	Reason     PlaceholderReason `json:"reason,omitempty"`
	Diagnostic string            `json:"diagnostic,omitempty"`
	Step       recovery.Step     `json:"step,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// stageResult is what one model call produced, before it is folded in.
type stageResult struct {
	raw     string
	text    string
	outcome recovery.Outcome
	err     error
}

// runState 只在编排 goroutine 上读写。
type runState struct {
	req         Request
	pkg         *Package
	imagePrefix string
}

func (st *runState) promptData() promptData {
	d := promptData{
		SourceTitle: st.req.SourceTitle,
		SourceBody:  st.req.SourceBody,
		SourceName:  st.req.SourceName,
		SourceURL:   st.req.SourceURL,
		BlogTitle:   st.pkg.Title,
		BlogContent: st.pkg.Content,
		Caption:     st.pkg.SocialPostCaption,
	}
	if a := st.pkg.SocialAnalysis; a != nil && a.Error == "" {
		d.Topic = a.Topic
		d.Takeaways = a.KeyTakeaways
		d.CoreEmotion = a.CoreEmotion
		d.CTAWord = a.CTAWord
	}
	return d
}

type stage struct {
	ID string
	// Label 用于占位符文本；Short 用于下游的 "upstream <Short> failed"。
	Label   string
	Short   string
	Role    Role
	Deps    []string
	Fatal   bool
	Enabled func(Toggles) bool
	Schema  *recovery.Schema
	Check   func(recovery.Outcome) error
	Apply   func(*runState, stageResult)
	Degrade func(st *runState, placeholder string, res stageResult)
}

func textStage(id, label, short string, role Role, deps []string, enabled func(Toggles) bool, field func(*Package) *string) stage {
	return stage{
		ID:      id,
		Label:   label,
		Short:   short,
		Role:    role,
		Deps:    deps,
		Enabled: enabled,
		Apply: func(st *runState, res stageResult) {
			*field(st.pkg) = res.text
		},
		Degrade: func(st *runState, placeholder string, _ stageResult) {
			*field(st.pkg) = placeholder
		},
	}
}

func always(Toggles) bool { return true }

func wantSocialTexts(t Toggles) bool    { return t.IncludeSocialTexts }
func wantStoryTeasers(t Toggles) bool   { return t.IncludeStoryTeasers }
func wantLocalizedVideo(t Toggles) bool { return t.IncludeLocalizedVideo }

// 分析结果同时供社交文案和本地化视频使用。
func wantAnalysis(t Toggles) bool { return t.IncludeSocialTexts || t.IncludeLocalizedVideo }

// stageTable 声明式的阶段表，按依赖顺序排列，由 Pipeline.Run 统一求值。
var stageTable = []stage{
	{
		ID:      StageBlog,
		Label:   "Blog content",
		Short:   "blog",
		Role:    RoleBlog,
		Fatal:   true,
		Enabled: always,
		Schema:  &BlogSchema,
		Apply: func(st *runState, res stageResult) {
			o := res.outcome
			p := st.pkg
			p.Title = o.Text("title")
			p.Content = dropDuplicateTitle(o.Text("content"), p.Title)
			p.Slug = o.Text("slug")
			p.SEOTitle = o.Text("seo_title")
			p.MetaDescription = o.Text("meta_description")
			p.AltText = o.Text("alt_text")
			p.PrimaryFocusKeyword = o.Text("primary_focus_keyword")
			p.SecondaryFocusKeyword = o.Text("secondary_focus_keyword")
			p.AdditionalFocusKeywords = nonNil(o.List("additional_focus_keywords"))
			p.Tags = nonNil(o.List("tags"))
			p.Filename = ThumbnailFilename(st.imagePrefix, p.Slug)
		},
		Degrade: func(st *runState, placeholder string, _ stageResult) {
			*st.pkg = Package{RunID: st.pkg.RunID, Error: placeholder}
		},
	},
	textStage(StageThumbnailImage, "Blog thumbnail image prompt", "blog thumbnail image prompt", RoleImage,
		[]string{StageBlog}, always, func(p *Package) *string { return &p.ImagePrompt }),
	textStage(StageStaticImage, "Social static image prompt", "social static image prompt", RoleImage,
		[]string{StageBlog}, always, func(p *Package) *string { return &p.SocialStaticImagePrompt }),
	textStage(StageVideoReadyImage, "Social video-ready image prompt", "social video-ready image prompt", RoleImage,
		[]string{StageBlog}, always, func(p *Package) *string { return &p.SocialVideoReadyImagePrompt }),
	{
		ID:      StageAnalysis,
		Label:   "Social analysis",
		Short:   "analysis",
		Role:    RoleSocial,
		Deps:    []string{StageBlog},
		Enabled: wantAnalysis,
		Schema:  &AnalysisSchema,
		Check: func(o recovery.Outcome) error {
			if strings.TrimSpace(o.Text("derived_blog_topic")) == "" {
				return errors.New("derived_blog_topic is empty")
			}
			return nil
		},
		Apply: func(st *runState, res stageResult) {
			o := res.outcome
			st.pkg.SocialAnalysis = &SocialAnalysis{
				Topic:        o.Text("derived_blog_topic"),
				KeyTakeaways: nonNil(o.List("derived_key_takeaways")),
				CoreEmotion:  o.Text("derived_core_emotion"),
				CTAWord:      o.Text("derived_cta_word"),
			}
		},
		Degrade: func(st *runState, placeholder string, _ stageResult) {
			st.pkg.SocialAnalysis = &SocialAnalysis{KeyTakeaways: []string{}, Error: placeholder}
		},
	},
	{
		ID:      StageSocialTexts,
		Label:   "Social post texts",
		Short:   "social post texts",
		Role:    RoleSocial,
		Deps:    []string{StageAnalysis},
		Enabled: wantSocialTexts,
		Schema:  &SocialTextsSchema,
		Check: func(o recovery.Outcome) error {
			if strings.TrimSpace(o.Text("social_post_caption")) == "" {
				return errors.New("social_post_caption is empty")
			}
			return nil
		},
		Apply: func(st *runState, res stageResult) {
			st.pkg.SocialPostTitle = res.outcome.Text("social_post_title")
			st.pkg.SocialPostCaption = res.outcome.Text("social_post_caption")
		},
		Degrade: func(st *runState, placeholder string, _ stageResult) {
			st.pkg.SocialPostTitle = placeholder
			st.pkg.SocialPostCaption = placeholder
		},
	},
	textStage(StageSocialVideo, "Social video prompt", "social video prompt", RoleImage,
		[]string{StageSocialTexts}, wantSocialTexts, func(p *Package) *string { return &p.SocialVideoPrompt }),
	{
		ID:      StageStoryTeasers,
		Label:   "Story teasers",
		Short:   "story teasers",
		Role:    RoleSocial,
		Deps:    []string{StageBlog},
		Enabled: wantStoryTeasers,
		Schema:  &StoryTeaserSchema,
		Apply: func(st *runState, res stageResult) {
			o := res.outcome
			st.pkg.StoryTeasers = &StoryTeasers{
				MainTitle: o.Text("story_main_title"),
				Subtitle:  o.Text("story_subtitle"),
				BodyText:  o.Text("story_body_text"),
				RawOutput: res.raw,
			}
		},
		Degrade: func(st *runState, placeholder string, res stageResult) {
			st.pkg.StoryTeasers = &StoryTeasers{
				MainTitle: placeholder,
				Subtitle:  placeholder,
				BodyText:  placeholder,
				Error:     placeholder,
				RawOutput: res.raw,
			}
		},
	},
	textStage(StageLocalizedVideo, "Localized video prompt", "localized video prompt", RoleSocial,
		[]string{StageAnalysis}, wantLocalizedVideo, func(p *Package) *string { return &p.LocalizedVideoPrompt }),
}

// Stages returns the stage ids in dependency order.
func Stages() []string {
	ids := make([]string, 0, len(stageTable))
	for _, s := range stageTable {
		ids = append(ids, s.ID)
	}
	return ids
}

func nonNil(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}
