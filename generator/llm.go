package generator

import (
	"context"
	"time"
)

// LLMClient 抽象大模型客户端，便于替换/Mock。
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Role 决定某个阶段使用哪一个模型。
type Role string

const (
	RoleBlog   Role = "blog"
	RoleImage  Role = "image"
	RoleSocial Role = "social"
)

// Clients holds one client per role. Image and Social fall back to Blog.
type Clients struct {
	Blog   LLMClient
	Image  LLMClient
	Social LLMClient
}

func (c Clients) For(role Role) LLMClient {
	switch role {
	case RoleImage:
		if c.Image != nil {
			return c.Image
		}
	case RoleSocial:
		if c.Social != nil {
			return c.Social
		}
	}
	return c.Blog
}

// withCallTimeout bounds a single model call; zero means no extra bound.
func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
