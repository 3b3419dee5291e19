package generator

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_blog_package_publisher/artifact"
	"auto_blog_package_publisher/logger"
)

type memStore struct {
	mu   sync.Mutex
	recs []artifact.Record
	err  error
}

func (m *memStore) Save(_ context.Context, rec artifact.Record) (artifact.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return artifact.Record{}, m.err
	}
	rec.ID = int64(len(m.recs) + 1)
	rec.Name = artifact.RecordName("test", rec.ID, rec.Slug, rec.Timestamp)
	m.recs = append(m.recs, rec)
	return rec, nil
}

func (m *memStore) List(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, r := range m.recs {
		names = append(names, r.Name)
	}
	return names, nil
}

func (m *memStore) Get(_ context.Context, id string) (artifact.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.Name == id {
			return r, nil
		}
	}
	return artifact.Record{}, artifact.ErrNotFound
}

// recordingLLM keeps the last prompt seen per stage.
type recordingLLM struct {
	inner   LLMClient
	mu      sync.Mutex
	prompts map[string]Prompt
}

func (r *recordingLLM) Complete(ctx context.Context, p Prompt) (string, error) {
	r.mu.Lock()
	if r.prompts == nil {
		r.prompts = map[string]Prompt{}
	}
	r.prompts[p.Stage] = p
	r.mu.Unlock()
	return r.inner.Complete(ctx, p)
}

func newTestPipeline(t *testing.T, llm LLMClient, store artifact.Store, concurrency int) *Pipeline {
	t.Helper()
	p, err := NewPipeline(Clients{Blog: llm}, nil, store, PipelineOptions{MaxConcurrency: concurrency, ImagePrefix: "example.com"}, logger.Nop())
	require.NoError(t, err)
	return p
}

func testRequest(t Toggles) Request {
	return Request{
		SourceTitle: "Central bank leaves rates unchanged",
		SourceBody:  "The central bank held its benchmark rate on Tuesday as inflation slowed for a third month.",
		SourceName:  "Example Wire",
		SourceURL:   "https://news.example.com/rates",
		Toggles:     t,
	}
}

func sortedCalls(m *MockLLM) []string {
	calls := m.Calls()
	sort.Strings(calls)
	return calls
}

func TestRunCleanModelPopulatesEverything(t *testing.T) {
	store := &memStore{}
	mock := NewMockLLM()
	pkg := newTestPipeline(t, mock, store, 3).Run(context.Background(), testRequest(AllToggles()))

	require.False(t, pkg.Fatal(), pkg.Error)
	assert.Empty(t, pkg.Placeholders())
	for key, v := range pkg.Fields() {
		switch val := v.(type) {
		case string:
			assert.NotEmpty(t, val, key)
			assert.Equal(t, ReasonNone, ClassifyPlaceholder(val), key)
		case []string:
			assert.NotEmpty(t, val, key)
		}
	}
	require.NotNil(t, pkg.StoryTeasers)
	assert.Equal(t, "Rates frozen", pkg.StoryTeasers.MainTitle)
	assert.Empty(t, pkg.StoryTeasers.Error)
	require.NotNil(t, pkg.SocialAnalysis)
	assert.Equal(t, "FOLLOW", pkg.SocialAnalysis.CTAWord)
	assert.Equal(t, []string{"economy", "central bank", "inflation"}, pkg.Tags)
	assert.Equal(t, "example.com-central-bank-holds-rates.webp", pkg.Filename)

	for _, rep := range pkg.Stages {
		assert.Equal(t, StatusSucceeded, rep.Status, rep.Stage)
	}
	assert.Equal(t, StageBlog, mock.Calls()[0])
	assert.Len(t, mock.Calls(), len(stageTable))

	require.Len(t, store.recs, 1)
	rec := store.recs[0]
	assert.Equal(t, artifact.StatusSuccess, rec.Status)
	assert.Equal(t, pkg.RunID, rec.RunID)
	assert.Len(t, rec.RawOutputs, len(stageTable))
	stored, err := PackageFromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, pkg.Title, stored.Title)
}

func TestRunBlogGarbageIsFatal(t *testing.T) {
	store := &memStore{}
	mock := NewMockLLM().Reply(StageBlog, "Sorry, I cannot write that article.")
	pkg := newTestPipeline(t, mock, store, 3).Run(context.Background(), testRequest(AllToggles()))

	require.True(t, pkg.Fatal())
	assert.True(t, strings.HasPrefix(pkg.Error, "Error: Blog content generation error: "), pkg.Error)
	assert.Equal(t, map[string]any{"run_id": pkg.RunID, "error": pkg.Error}, pkg.Fields())
	assert.Empty(t, pkg.Title)
	assert.Empty(t, pkg.ImagePrompt)
	assert.Empty(t, pkg.SocialPostTitle)
	assert.Nil(t, pkg.StoryTeasers)
	assert.Nil(t, pkg.SocialAnalysis)
	assert.Equal(t, []string{StageBlog}, mock.Calls())

	body, err := json.Marshal(pkg)
	require.NoError(t, err)
	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &top))
	keys := make([]string, 0, len(top))
	for k := range top {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"error", "run_id", "stages"}, keys)

	require.Len(t, store.recs, 1)
	assert.Equal(t, artifact.StatusError, store.recs[0].Status)
	assert.Equal(t, "Sorry, I cannot write that article.", store.recs[0].RawOutputs[StageBlog])
	assert.Equal(t, StatusFailedFatal, pkg.Stages[0].Status)
	assert.Equal(t, StatusNotStarted, pkg.Stages[1].Status)
}

func TestRunStoryTeasersSkippedByUser(t *testing.T) {
	mock := NewMockLLM()
	toggles := AllToggles()
	toggles.IncludeStoryTeasers = false
	pkg := newTestPipeline(t, mock, nil, 3).Run(context.Background(), testRequest(toggles))

	require.False(t, pkg.Fatal())
	require.NotNil(t, pkg.StoryTeasers)
	want := "Story teasers not generated (skipped by user)."
	assert.Equal(t, want, pkg.StoryTeasers.Error)
	assert.Equal(t, want, pkg.StoryTeasers.MainTitle)
	assert.Equal(t, ReasonSkippedByUser, ClassifyPlaceholder(pkg.StoryTeasers.Error))
	assert.False(t, IsErrorPlaceholder(pkg.StoryTeasers.Error))
	assert.Equal(t, map[string]PlaceholderReason{"story_teasers": ReasonSkippedByUser}, pkg.Placeholders())
	assert.NotContains(t, mock.Calls(), StageStoryTeasers)

	assert.NotEmpty(t, pkg.SocialPostCaption)
	assert.Equal(t, ReasonNone, ClassifyPlaceholder(pkg.SocialVideoPrompt))
	assert.Equal(t, ReasonNone, ClassifyPlaceholder(pkg.LocalizedVideoPrompt))
}

func TestRunAnalysisMissingFieldSkipsSocialTexts(t *testing.T) {
	mock := NewMockLLM().Reply(StageAnalysis,
		`{"derived_blog_topic": "Rates on hold", "derived_key_takeaways": ["Rates unchanged"], "derived_core_emotion": "relief"}`)
	pkg := newTestPipeline(t, mock, nil, 3).Run(context.Background(), testRequest(AllToggles()))

	require.False(t, pkg.Fatal())
	want := "Error: Social post texts not generated (upstream analysis failed)."
	assert.Equal(t, want, pkg.SocialPostTitle)
	assert.Equal(t, want, pkg.SocialPostCaption)
	assert.Equal(t, "Error: Social video prompt not generated (upstream social post texts failed).", pkg.SocialVideoPrompt)
	assert.Equal(t, "Error: Localized video prompt not generated (upstream analysis failed).", pkg.LocalizedVideoPrompt)
	assert.NotContains(t, mock.Calls(), StageSocialTexts)
	assert.NotContains(t, mock.Calls(), StageSocialVideo)

	require.NotNil(t, pkg.SocialAnalysis)
	assert.Equal(t, ReasonGenerationError, ClassifyPlaceholder(pkg.SocialAnalysis.Error))
	assert.Contains(t, pkg.SocialAnalysis.Error, "derived_cta_word")
	assert.Empty(t, pkg.SocialAnalysis.Topic)
	assert.Equal(t, []string{}, pkg.SocialAnalysis.KeyTakeaways)

	reports := map[string]StageReport{}
	for _, r := range pkg.Stages {
		reports[r.Stage] = r
	}
	assert.Equal(t, StatusFailedRecoverable, reports[StageAnalysis].Status)
	assert.Equal(t, StatusSkipped, reports[StageSocialTexts].Status)
	assert.Equal(t, ReasonUpstreamFailed, reports[StageSocialTexts].Reason)

	// 与分析无关的阶段照常完成
	assert.Equal(t, "Rates frozen", pkg.StoryTeasers.MainTitle)
	assert.Equal(t, ReasonNone, ClassifyPlaceholder(pkg.ImagePrompt))
}

func TestRunToggleTakesPrecedenceOverUpstreamFailure(t *testing.T) {
	mock := NewMockLLM().Reply(StageAnalysis, "not json")
	toggles := Toggles{IncludeSocialTexts: false, IncludeStoryTeasers: true, IncludeLocalizedVideo: true}
	pkg := newTestPipeline(t, mock, nil, 2).Run(context.Background(), testRequest(toggles))

	assert.Equal(t, "Social post texts not generated (skipped by user).", pkg.SocialPostTitle)
	assert.Equal(t, "Social video prompt not generated (skipped by user).", pkg.SocialVideoPrompt)
	assert.Equal(t, ReasonUpstreamFailed, ClassifyPlaceholder(pkg.LocalizedVideoPrompt))
}

func TestRunImageFailureDegradesOnlyThatField(t *testing.T) {
	mock := NewMockLLM().Fail(StageStaticImage, errors.New("context deadline exceeded"))
	pkg := newTestPipeline(t, mock, nil, 3).Run(context.Background(), testRequest(AllToggles()))

	require.False(t, pkg.Fatal())
	assert.Equal(t, "Error: Social static image prompt generation error: model call failed: context deadline exceeded",
		pkg.SocialStaticImagePrompt)
	assert.Equal(t, map[string]PlaceholderReason{"social_static_image_prompt": ReasonGenerationError}, pkg.Placeholders())
}

func TestRunStoryTeaserFailureKeepsRawOutput(t *testing.T) {
	raw := `{"story_main_title": "Only a title"}`
	mock := NewMockLLM().Reply(StageStoryTeasers, raw)
	pkg := newTestPipeline(t, mock, nil, 3).Run(context.Background(), testRequest(AllToggles()))

	require.NotNil(t, pkg.StoryTeasers)
	assert.Equal(t, raw, pkg.StoryTeasers.RawOutput)
	assert.Equal(t, ReasonGenerationError, ClassifyPlaceholder(pkg.StoryTeasers.MainTitle))
	assert.Contains(t, pkg.StoryTeasers.Error, "story_subtitle")
}

func TestRunSequentialAndConcurrentAgree(t *testing.T) {
	build := func(concurrency int) Package {
		mock := NewMockLLM().Reply(StageStoryTeasers, "garbage")
		return newTestPipeline(t, mock, nil, concurrency).Run(context.Background(), testRequest(AllToggles()))
	}
	seq, par := build(1), build(8)
	if diff := cmp.Diff(seq, par, cmpopts.IgnoreFields(Package{}, "RunID")); diff != "" {
		t.Fatalf("packages differ (-sequential +concurrent):\n%s", diff)
	}
}

func TestRunPersistenceFailureIsSwallowed(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	pkg := newTestPipeline(t, NewMockLLM(), store, 3).Run(context.Background(), testRequest(AllToggles()))
	assert.False(t, pkg.Fatal())
	assert.Empty(t, pkg.Placeholders())
}

func TestRunInvalidRequestNeverCallsModel(t *testing.T) {
	mock := NewMockLLM()
	req := testRequest(AllToggles())
	req.SourceBody = "  "
	pkg := newTestPipeline(t, mock, nil, 3).Run(context.Background(), req)
	assert.True(t, pkg.Fatal())
	assert.Contains(t, pkg.Error, "source body is required")
	assert.Empty(t, mock.Calls())
}

func TestRunFeedsDerivedValuesIntoPrompts(t *testing.T) {
	rec := &recordingLLM{inner: NewMockLLM()}
	newTestPipeline(t, rec, nil, 3).Run(context.Background(), testRequest(AllToggles()))

	social := rec.prompts[StageSocialTexts]
	assert.Contains(t, social.User, "Rates on hold as inflation cools")
	assert.Contains(t, social.User, "* Inflation eased for a third month")
	assert.Contains(t, social.User, "FOLLOW")
	assert.NotEmpty(t, social.System)

	assert.Contains(t, rec.prompts[StageAnalysis].User, "Central bank holds rates as inflation cools")
	assert.Contains(t, rec.prompts[StageSocialVideo].User, "Comment FOLLOW")
	assert.Contains(t, rec.prompts[StageThumbnailImage].User, "Central bank leaves rates unchanged")
	assert.Empty(t, rec.prompts[StageThumbnailImage].System)
}

func TestCallsCoverEveryStage(t *testing.T) {
	mock := NewMockLLM()
	newTestPipeline(t, mock, nil, 4).Run(context.Background(), testRequest(AllToggles()))
	want := Stages()
	sort.Strings(want)
	assert.Equal(t, want, sortedCalls(mock))
}

func TestStageTableDependsOnlyOnEarlierStages(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range stageTable {
		for _, dep := range s.Deps {
			assert.True(t, seen[dep], "%s depends on later stage %s", s.ID, dep)
		}
		seen[s.ID] = true
		assert.NotEmpty(t, s.Label)
		assert.NotNil(t, s.Apply)
		assert.NotNil(t, s.Degrade)
	}
}

func TestClientsForFallsBackToBlog(t *testing.T) {
	blog, social := NewMockLLM(), NewMockLLM()
	c := Clients{Blog: blog, Social: social}
	assert.Same(t, blog, c.For(RoleImage))
	assert.Same(t, social, c.For(RoleSocial))
	assert.Same(t, blog, c.For(RoleBlog))
}
