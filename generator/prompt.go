package generator

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Prompt 表示发送给 LLM 的消息集合。
type Prompt struct {
	Stage  string
	System string
	User   string
}

//go:embed prompts.yaml
var defaultPromptsYAML []byte

type promptSource struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type promptTemplate struct {
	system *template.Template
	user   *template.Template
}

// PromptCatalog renders the system/user messages of every stage.
type PromptCatalog struct {
	templates map[string]promptTemplate
}

// promptData 是模板可见的字段。
type promptData struct {
	SourceTitle string
	SourceBody  string
	SourceName  string
	SourceURL   string
	BlogTitle   string
	BlogContent string
	Topic       string
	Takeaways   []string
	CoreEmotion string
	CTAWord     string
	Caption     string
}

// LoadPrompts parses the embedded catalog and, when path is set, overlays
// the stages defined in that YAML file.
func LoadPrompts(path string) (*PromptCatalog, error) {
	sources, err := decodePrompts(defaultPromptsYAML)
	if err != nil {
		return nil, fmt.Errorf("embedded prompts: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompts %s: %w", path, err)
		}
		overrides, err := decodePrompts(data)
		if err != nil {
			return nil, fmt.Errorf("prompts %s: %w", path, err)
		}
		for stage, src := range overrides {
			sources[stage] = src
		}
	}
	return compilePrompts(sources)
}

// DefaultPrompts returns the embedded catalog.
func DefaultPrompts() *PromptCatalog {
	c, err := LoadPrompts("")
	if err != nil {
		panic(err)
	}
	return c
}

func decodePrompts(data []byte) (map[string]promptSource, error) {
	sources := map[string]promptSource{}
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

func compilePrompts(sources map[string]promptSource) (*PromptCatalog, error) {
	c := &PromptCatalog{templates: make(map[string]promptTemplate, len(sources))}
	var errs []error
	for _, st := range stageTable {
		src, ok := sources[st.ID]
		if !ok || strings.TrimSpace(src.User) == "" {
			errs = append(errs, fmt.Errorf("stage %s: user prompt missing", st.ID))
			continue
		}
		var pt promptTemplate
		var err error
		if pt.user, err = template.New(st.ID + ".user").Option("missingkey=error").Parse(src.User); err != nil {
			errs = append(errs, fmt.Errorf("stage %s: %w", st.ID, err))
			continue
		}
		if src.System != "" {
			if pt.system, err = template.New(st.ID + ".system").Option("missingkey=error").Parse(src.System); err != nil {
				errs = append(errs, fmt.Errorf("stage %s: %w", st.ID, err))
				continue
			}
		}
		c.templates[st.ID] = pt
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// render 生成某阶段的 Prompt。
func (c *PromptCatalog) render(stage string, data promptData) (Prompt, error) {
	pt, ok := c.templates[stage]
	if !ok {
		return Prompt{}, fmt.Errorf("no prompt for stage %s", stage)
	}
	p := Prompt{Stage: stage}
	var sb strings.Builder
	if pt.system != nil {
		if err := pt.system.Execute(&sb, data); err != nil {
			return Prompt{}, fmt.Errorf("render %s system prompt: %w", stage, err)
		}
		p.System = strings.TrimSpace(sb.String())
		sb.Reset()
	}
	if err := pt.user.Execute(&sb, data); err != nil {
		return Prompt{}, fmt.Errorf("render %s user prompt: %w", stage, err)
	}
	p.User = strings.TrimSpace(sb.String())
	return p, nil
}
