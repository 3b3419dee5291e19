package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"auto_blog_package_publisher/artifact"
	"auto_blog_package_publisher/config"
	"auto_blog_package_publisher/generator"
	"auto_blog_package_publisher/logger"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "blogpkg",
		Short: "Turn one news article into a blog post and marketing package",
		Long: `blogpkg turns a source news article into a localized SEO blog post,
image prompts, social texts, story teasers and short-video prompts, and can
publish the post to WordPress as a draft.

Examples:
  # Generate from a file
  blogpkg generate --title "Central bank holds rates" --body-file article.md

  # Generate from a URL, skipping story teasers
  blogpkg generate --url https://news.example/rates --story-teasers=false

  # Start the web UI
  blogpkg serve --addr :8080`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file (yaml/json, optional)")

	root.AddCommand(newGenerateCmd(), newServeCmd(), newPublishCmd(), newArtifactsCmd())
	return root
}

// app 是每个子命令共享的运行环境。
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	store artifact.Store
}

func loadApp(ctx context.Context, withStore bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}
	if withStore {
		if a.store, err = artifact.Open(ctx, cfg.Storage, log); err != nil {
			return nil, fmt.Errorf("open artifact store: %w", err)
		}
	}
	return a, nil
}

func (a *app) pipeline(ctx context.Context) (*generator.Pipeline, error) {
	clients, err := buildClients(ctx, a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	prompts, err := generator.LoadPrompts(a.cfg.Prompts.Path)
	if err != nil {
		return nil, err
	}
	return generator.NewPipeline(clients, prompts, a.store, generator.PipelineOptions{
		MaxConcurrency: a.cfg.LLM.MaxConcurrency,
		ImagePrefix:    a.cfg.Site.ImagePrefix,
	}, a.log)
}

// buildClients 为 blog/image/social 三个角色各建一个客户端，模型名相同时复用。
func buildClients(ctx context.Context, cfg config.LLM) (generator.Clients, error) {
	built := map[string]generator.LLMClient{}
	get := func(model string) (generator.LLMClient, error) {
		if c, ok := built[model]; ok {
			return c, nil
		}
		c, err := buildLLM(ctx, cfg, model)
		if err != nil {
			return nil, err
		}
		built[model] = c
		return c, nil
	}
	var clients generator.Clients
	var err error
	if clients.Blog, err = get(cfg.Models.Blog); err != nil {
		return clients, err
	}
	if clients.Image, err = get(cfg.Models.Image); err != nil {
		return clients, err
	}
	if clients.Social, err = get(cfg.Models.Social); err != nil {
		return clients, err
	}
	return clients, nil
}

func buildLLM(ctx context.Context, cfg config.LLM, model string) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider:   cfg.Provider,
		Model:      model,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	}
	switch cfg.Provider {
	case "openai":
		return generator.NewOpenAILLMFromConfig(settings)
	case "deepseek", "avalai":
		// OpenAI 兼容网关，需填写 base_url。
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider %s requires base_url (OpenAI-compatible endpoint)", cfg.Provider)
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "gemini":
		return generator.NewGeminiLLMFromConfig(ctx, settings)
	case "mock":
		return generator.NewMockLLM(), nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}
