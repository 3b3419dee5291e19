package generator

import (
	"errors"
	"strings"
)

// Toggles gate the optional stages of a run.
type Toggles struct {
	IncludeSocialTexts    bool `json:"include_social_texts"`
	IncludeStoryTeasers   bool `json:"include_story_teasers"`
	IncludeLocalizedVideo bool `json:"include_localized_video"`
}

// AllToggles 打开全部可选阶段。
func AllToggles() Toggles {
	return Toggles{IncludeSocialTexts: true, IncludeStoryTeasers: true, IncludeLocalizedVideo: true}
}

// Request is the immutable input of one run.
type Request struct {
	SourceTitle string  `json:"source_title"`
	SourceBody  string  `json:"source_body"`
	SourceName  string  `json:"source_name"`
	SourceURL   string  `json:"source_url"`
	Toggles     Toggles `json:"toggles"`
}

func (r Request) Validate() error {
	var errs []error
	if strings.TrimSpace(r.SourceTitle) == "" {
		errs = append(errs, errors.New("source title is required"))
	}
	if strings.TrimSpace(r.SourceBody) == "" {
		errs = append(errs, errors.New("source body is required"))
	}
	return errors.Join(errs...)
}
