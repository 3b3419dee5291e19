package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"auto_blog_package_publisher/artifact"
	"auto_blog_package_publisher/logger"
	"auto_blog_package_publisher/recovery"
)

// PipelineOptions 运行参数。
type PipelineOptions struct {
	// MaxConcurrency bounds concurrent model calls within one wave.
	MaxConcurrency int
	// ImagePrefix is the thumbnail filename prefix, usually the site domain.
	ImagePrefix string
}

// Pipeline 按阶段表编排一次运行：调用模型、恢复结构化输出、降级、持久化。
type Pipeline struct {
	clients Clients
	prompts *PromptCatalog
	store   artifact.Store
	opts    PipelineOptions
	log     *logger.Logger
	now     func() time.Time
}

// NewPipeline wires the collaborators. store may be nil to disable
// persistence; prompts may be nil to use the embedded catalog.
func NewPipeline(clients Clients, prompts *PromptCatalog, store artifact.Store, opts PipelineOptions, log *logger.Logger) (*Pipeline, error) {
	if clients.Blog == nil {
		return nil, errors.New("llm client is required")
	}
	if prompts == nil {
		var err error
		if prompts, err = LoadPrompts(""); err != nil {
			return nil, err
		}
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	return &Pipeline{
		clients: clients,
		prompts: prompts,
		store:   store,
		opts:    opts,
		log:     log,
		now:     time.Now,
	}, nil
}

type stageCall struct {
	stage  *stage
	prompt Prompt
}

// Run executes every stage and returns the complete package. It never
// fails: stage failures become placeholders, a blog failure becomes the
// package's top-level error, and persistence errors are only logged.
func (p *Pipeline) Run(ctx context.Context, req Request) Package {
	runID := uuid.NewString()
	log := p.log.With("run_id", runID)
	st := &runState{req: req, pkg: &Package{RunID: runID}, imagePrefix: p.opts.ImagePrefix}

	reports := make(map[string]*StageReport, len(stageTable))
	for _, s := range stageTable {
		reports[s.ID] = &StageReport{Stage: s.ID, Status: StatusNotStarted}
	}
	raws := map[string]string{}

	log.Info("pipeline start", "source", req.SourceName, "title", logger.Preview(req.SourceTitle, 80),
		"social_texts", req.Toggles.IncludeSocialTexts,
		"story_teasers", req.Toggles.IncludeStoryTeasers,
		"localized_video", req.Toggles.IncludeLocalizedVideo)

	if err := req.Validate(); err != nil {
		blog := &stageTable[0]
		p.fold(log, st, blog, stageResult{err: fmt.Errorf("invalid request: %w", err)}, reports)
	} else {
		p.execute(ctx, log, st, reports, raws)
	}

	for _, s := range stageTable {
		st.pkg.Stages = append(st.pkg.Stages, *reports[s.ID])
	}
	pkg := *st.pkg
	log.Info("pipeline done", "fatal", pkg.Fatal(), "placeholders", len(pkg.Placeholders()))

	p.persist(ctx, log, pkg, raws)
	return pkg
}

// execute runs the table in dependency waves. Calls inside a wave run
// concurrently; their results are folded in table order here, so the
// package only ever changes on this goroutine.
func (p *Pipeline) execute(ctx context.Context, log *logger.Logger, st *runState, reports map[string]*StageReport, raws map[string]string) {
	pending := make([]*stage, 0, len(stageTable))
	for i := range stageTable {
		pending = append(pending, &stageTable[i])
	}

	for len(pending) > 0 {
		var wave, rest []*stage
		for _, s := range pending {
			if depsResolved(s, reports) {
				wave = append(wave, s)
			} else {
				rest = append(rest, s)
			}
		}
		if len(wave) == 0 {
			for _, s := range rest {
				p.fold(log, st, s, stageResult{err: errors.New("unresolvable stage dependencies")}, reports)
			}
			return
		}

		var calls []stageCall
		for _, s := range wave {
			if reason, placeholder := skipDecision(s, st.req.Toggles, reports); reason != ReasonNone {
				rep := reports[s.ID]
				rep.Status = StatusSkipped
				rep.Reason = reason
				rep.Diagnostic = placeholder
				s.Degrade(st, placeholder, stageResult{})
				log.Info("stage skipped", "stage", s.ID, "reason", reason)
				continue
			}
			prompt, err := p.prompts.render(s.ID, st.promptData())
			if err != nil {
				if p.fold(log, st, s, stageResult{err: err}, reports) {
					return
				}
				continue
			}
			reports[s.ID].Status = StatusRunning
			calls = append(calls, stageCall{stage: s, prompt: prompt})
		}

		results := make([]stageResult, len(calls))
		var g errgroup.Group
		g.SetLimit(p.opts.MaxConcurrency)
		for i, c := range calls {
			g.Go(func() error {
				log.Debug("stage running", "stage", c.stage.ID, "role", c.stage.Role)
				results[i] = p.invoke(ctx, c.stage, c.prompt)
				return nil
			})
		}
		_ = g.Wait()

		for i, c := range calls {
			raws[c.stage.ID] = results[i].raw
			if p.fold(log, st, c.stage, results[i], reports) {
				return
			}
		}
		pending = rest
	}
}

// invoke 调用模型并恢复输出；只读 stage 定义，不触碰 package。
func (p *Pipeline) invoke(ctx context.Context, s *stage, prompt Prompt) stageResult {
	raw, err := p.clients.For(s.Role).Complete(ctx, prompt)
	if err != nil {
		return stageResult{raw: raw, err: fmt.Errorf("model call failed: %w", err)}
	}
	res := stageResult{raw: raw}
	if s.Schema == nil {
		res.text, res.err = PostProcess(raw)
		return res
	}
	res.outcome = recovery.Recover(raw, *s.Schema)
	if !res.outcome.OK() {
		res.err = errors.New(res.outcome.Diagnostic)
		return res
	}
	if s.Check != nil {
		res.err = s.Check(res.outcome)
	}
	return res
}

// fold applies one stage result to the package and reports whether the run
// must abort.
func (p *Pipeline) fold(log *logger.Logger, st *runState, s *stage, res stageResult, reports map[string]*StageReport) bool {
	rep := reports[s.ID]
	rep.Step = res.outcome.Step
	rep.Warnings = res.outcome.Warnings
	for _, w := range res.outcome.Warnings {
		log.Warn("recovery dropped element", "stage", s.ID, "warning", w)
	}

	if res.err == nil {
		rep.Status = StatusSucceeded
		rep.Diagnostic = res.outcome.Diagnostic
		s.Apply(st, res)
		log.Info("stage succeeded", "stage", s.ID, "step", rep.Step)
		return false
	}

	diag := res.err.Error()
	rep.Reason = ReasonGenerationError
	rep.Diagnostic = diag
	s.Degrade(st, errorPlaceholder(s.Label, diag), res)
	if res.raw != "" {
		log.Debug("raw stage output", "stage", s.ID, "raw", logger.Preview(res.raw, 300))
	}
	if s.Fatal {
		rep.Status = StatusFailedFatal
		log.Error("stage failed, aborting run", "stage", s.ID, "error", diag)
		return true
	}
	rep.Status = StatusFailedRecoverable
	log.Warn("stage failed", "stage", s.ID, "error", diag)
	return false
}

func depsResolved(s *stage, reports map[string]*StageReport) bool {
	for _, dep := range s.Deps {
		if !reports[dep].Status.terminal() {
			return false
		}
	}
	return true
}

// skipDecision 关闭的开关优先于上游失败。
func skipDecision(s *stage, t Toggles, reports map[string]*StageReport) (PlaceholderReason, string) {
	if s.Enabled != nil && !s.Enabled(t) {
		return ReasonSkippedByUser, skippedPlaceholder(s.Label)
	}
	for _, dep := range s.Deps {
		if reports[dep].Status != StatusSucceeded {
			return ReasonUpstreamFailed, upstreamPlaceholder(s.Label, stageShort(dep))
		}
	}
	return ReasonNone, ""
}

func stageShort(id string) string {
	for _, s := range stageTable {
		if s.ID == id {
			return s.Short
		}
	}
	return id
}

// persist saves the run best-effort; failures never reach the caller.
func (p *Pipeline) persist(ctx context.Context, log *logger.Logger, pkg Package, raws map[string]string) {
	if p.store == nil {
		return
	}
	body, err := json.Marshal(pkg)
	if err != nil {
		log.Error("encode package for artifact", "error", err)
		return
	}
	rec := artifact.Record{
		RunID:      pkg.RunID,
		Slug:       pkg.Slug,
		Timestamp:  p.now(),
		Status:     artifact.StatusSuccess,
		Error:      pkg.Error,
		RawOutputs: raws,
		Package:    body,
	}
	if pkg.Fatal() {
		rec.Status = artifact.StatusError
	}
	saved, err := p.store.Save(ctx, rec)
	if err != nil {
		log.Error("save artifact failed", "error", err)
		return
	}
	log.Info("artifact saved", "id", saved.ID, "name", saved.Name)
}
