package generator

import (
	"context"
	"fmt"
	"sync"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
// 按 Prompt.Stage 返回预置回复；未登记的阶段返回一段纯文本。
type MockLLM struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []string
}

// NewMockLLM returns a mock that answers every stage with a well-formed reply.
func NewMockLLM() *MockLLM {
	m := &MockLLM{responses: map[string]string{}, errs: map[string]error{}}
	for stage, reply := range mockReplies {
		m.responses[stage] = reply
	}
	return m
}

// Reply overrides the canned reply for one stage.
func (m *MockLLM) Reply(stage, raw string) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[stage] = raw
	delete(m.errs, stage)
	return m
}

// Fail makes every call for stage return err.
func (m *MockLLM) Fail(stage string, err error) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[stage] = err
	return m
}

// Calls returns the stages invoked so far, in call order.
func (m *MockLLM) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, prompt.Stage)
	reply, ok := m.responses[prompt.Stage]
	err := m.errs[prompt.Stage]
	m.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("Mock output for %s.\n\n%s", prompt.Stage, prompt.User), nil
	}
	return reply, nil
}

const mockBlogReply = "```json\n" + `{
  "primary_focus_keyword": "central bank rates",
  "secondary_focus_keyword": "inflation outlook",
  "additional_focus_keywords": ["interest rates", "monetary policy"],
  "title": "Central bank holds rates as inflation cools",
  "seo_title": "Central Bank Holds Rates | Inflation Outlook",
  "slug": "central-bank-holds-rates",
  "meta_description": "The central bank kept rates unchanged while inflation eased for a third month.",
  "alt_text": "Central bank building at dusk",
  "tags": ["economy", "central bank", "inflation"],
  "content": "## What happened\n\nThe central bank kept its policy rate unchanged.\n\n## Why it matters\n\nBorrowing costs stay high for now."
}` + "\n```"

var mockReplies = map[string]string{
	StageBlog:            mockBlogReply,
	StageThumbnailImage:  "Editorial photo of a central bank facade at dusk, soft rim light, 16:9.",
	StageStaticImage:     "Bold flat illustration of a thermometer cooling over a city skyline, square format.",
	StageVideoReadyImage: "Wide shot of a trading floor with screens showing a flat line, room for camera motion.",
	StageAnalysis:        `{"derived_blog_topic": "Rates on hold as inflation cools", "derived_key_takeaways": ["Rates unchanged", "Inflation eased for a third month"], "derived_core_emotion": "relief", "derived_cta_word": "FOLLOW"}`,
	StageSocialTexts:     `{"social_post_title": "Rates on hold. What now?", "social_post_caption": "Inflation cooled again and the bank stayed put. Comment FOLLOW for the full breakdown."}`,
	StageSocialVideo:     "Slow push-in on the skyline, screens flicker to green, 8 seconds, upbeat mood.",
	StageStoryTeasers:    `{"story_main_title": "Rates frozen", "story_subtitle": "Inflation cools for a third month", "story_body_text": "Here is what it means for your loan."}`,
	StageLocalizedVideo:  "Street interview montage in a busy bazaar about prices, captions in the local language, 20 seconds.",
}
