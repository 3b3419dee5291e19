package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"auto_blog_package_publisher/config"
	"auto_blog_package_publisher/logger"
)

const (
	// DefaultCategoryID / DefaultTagID are the site's news category and the
	// tag every generated post carries.
	DefaultCategoryID = 26
	DefaultTagID      = 46

	postsPath    = "/wp-json/wp/v2/posts"
	tagsPath     = "/wp-json/wp/v2/tags"
	mediaPath    = "/wp-json/wp/v2/media"
	rankMathPath = "/wp-json/rank-math-api/v1/update-meta"
)

// Fields is the flat key set a draft is built from.
type Fields struct {
	Title                   string   `json:"title"`
	Content                 string   `json:"content"`
	Slug                    string   `json:"slug,omitempty"`
	Tags                    []string `json:"tags,omitempty"`
	PrimaryFocusKeyword     string   `json:"primary_focus_keyword,omitempty"`
	SecondaryFocusKeyword   string   `json:"secondary_focus_keyword,omitempty"`
	AdditionalFocusKeywords []string `json:"additional_focus_keywords,omitempty"`
	SEOTitle                string   `json:"seo_title,omitempty"`
	SEODescription          string   `json:"seo_description,omitempty"`
	ImagePath               string   `json:"image_path,omitempty"`
	ImageAltText            string   `json:"image_alt_text,omitempty"`
}

// Result reports the outcome of Publish. Success only reflects the draft
// creation; later steps add warnings.
type Result struct {
	Success    bool     `json:"success"`
	ID         int64    `json:"id,omitempty"`
	URL        string   `json:"url,omitempty"`
	PreviewURL string   `json:"preview_url,omitempty"`
	EditURL    string   `json:"edit_url,omitempty"`
	MediaID    int64    `json:"media_id,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// APIError is a non-2xx answer from one publish step.
type APIError struct {
	Step       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wordpress %s: status %d: %s", e.Step, e.StatusCode, e.Body)
}

// Publisher creates WordPress drafts over the REST API with an application
// password.
type Publisher struct {
	cfg    config.WordPress
	base   string
	client *http.Client
	log    *logger.Logger
}

func New(cfg config.WordPress, client *http.Client, log *logger.Logger) (*Publisher, error) {
	if cfg.URL == "" || cfg.Username == "" || cfg.AppPassword == "" {
		return nil, errors.New("wordpress url, username and app_password are required")
	}
	if cfg.CategoryID == 0 {
		cfg.CategoryID = DefaultCategoryID
	}
	if cfg.DefaultTagID == 0 {
		cfg.DefaultTagID = DefaultTagID
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{
		cfg:    cfg,
		base:   strings.TrimRight(cfg.URL, "/"),
		client: client,
		log:    log.With("component", "publisher"),
	}, nil
}

// Publish runs tag resolution, draft creation, Rank Math meta update and
// featured image upload. Only a failed draft creation fails the publish.
func (p *Publisher) Publish(ctx context.Context, f Fields) Result {
	if strings.TrimSpace(f.Title) == "" || strings.TrimSpace(f.Content) == "" {
		return Result{Error: "title and content are required"}
	}

	contentHTML, err := mdToHTML(f.Content)
	if err != nil {
		p.log.Warn("markdown conversion failed, sending raw content", "error", err)
		contentHTML = f.Content
	}

	tagIDs := p.resolveTags(ctx, f.Tags)

	post, err := p.createPost(ctx, f, contentHTML, tagIDs)
	if err != nil {
		p.log.Error("create draft failed", "title", logger.Preview(f.Title, 50), "error", err)
		return Result{Error: err.Error()}
	}
	p.log.Info("draft created", "post_id", post.ID, "tags", tagIDs)

	res := Result{
		Success:    true,
		ID:         post.ID,
		URL:        post.Link,
		PreviewURL: previewLink(post.Link),
		EditURL:    fmt.Sprintf("%s/wp-admin/post.php?post=%d&action=edit", p.base, post.ID),
	}

	if err := p.updateRankMath(ctx, post.ID, f); err != nil {
		p.log.Warn("rank math update failed", "post_id", post.ID, "error", err)
		res.Warnings = append(res.Warnings, err.Error())
	}

	if f.ImagePath != "" && f.ImageAltText != "" {
		mediaID, warnings := p.attachFeaturedImage(ctx, post.ID, f.ImagePath, f.ImageAltText)
		res.MediaID = mediaID
		res.Warnings = append(res.Warnings, warnings...)
	}
	return res
}

type wpTag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// resolveTags maps names to ids: exact search hits are reused, unknown
// ASCII names are created, the rest are skipped. The default tag is always
// first.
func (p *Publisher) resolveTags(ctx context.Context, names []string) []int64 {
	ids := []int64{int64(p.cfg.DefaultTagID)}
	seen := map[int64]bool{ids[0]: true}
	add := func(id int64) {
		if id != 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, err := p.findTag(ctx, name)
		if err != nil {
			p.log.Warn("tag search failed", "tag", name, "error", err)
			continue
		}
		if id != 0 {
			add(id)
			continue
		}
		if !isASCII(name) {
			p.log.Info("skip creating non-ascii tag", "tag", name)
			continue
		}
		var created wpTag
		if err := p.doJSON(ctx, "create tag", http.MethodPost, p.base+tagsPath, map[string]string{"name": name}, &created); err != nil {
			p.log.Warn("tag create failed", "tag", name, "error", err)
			continue
		}
		p.log.Info("tag created", "tag", name, "id", created.ID)
		add(created.ID)
	}
	return ids
}

func (p *Publisher) findTag(ctx context.Context, name string) (int64, error) {
	q := url.Values{}
	q.Set("search", name)
	q.Set("per_page", "10")
	var found []wpTag
	if err := p.doJSON(ctx, "search tag", http.MethodGet, p.base+tagsPath+"?"+q.Encode(), nil, &found); err != nil {
		return 0, err
	}
	// search 是模糊匹配，只认同名
	for _, t := range found {
		if t.Name == name {
			return t.ID, nil
		}
	}
	return 0, nil
}

type wpPost struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

func (p *Publisher) createPost(ctx context.Context, f Fields, contentHTML string, tagIDs []int64) (wpPost, error) {
	payload := map[string]any{
		"title":      f.Title,
		"content":    contentHTML,
		"status":     "draft",
		"categories": []int{p.cfg.CategoryID},
		"tags":       tagIDs,
	}
	if f.Slug != "" {
		payload["slug"] = f.Slug
	}
	excerpt := f.SEODescription
	if excerpt == "" {
		excerpt = defaultDigest(f.Content, 160)
	}
	payload["excerpt"] = excerpt

	var post wpPost
	if err := p.doJSON(ctx, "create post", http.MethodPost, p.base+postsPath, payload, &post); err != nil {
		return wpPost{}, err
	}
	if post.ID == 0 {
		return wpPost{}, errors.New("wordpress create post: response carried no id")
	}
	return post, nil
}

// FocusKeywords joins primary, secondary and additional keywords in order.
func (f Fields) FocusKeywords() string {
	var kws []string
	for _, k := range append([]string{f.PrimaryFocusKeyword, f.SecondaryFocusKeyword}, f.AdditionalFocusKeywords...) {
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, k)
		}
	}
	return strings.Join(kws, ",")
}

func (p *Publisher) updateRankMath(ctx context.Context, postID int64, f Fields) error {
	payload := map[string]any{"post_id": postID}
	if kws := f.FocusKeywords(); kws != "" {
		payload["rank_math_focus_keyword"] = kws
	}
	if f.SEOTitle != "" {
		payload["rank_math_title"] = f.SEOTitle
	}
	if f.SEODescription != "" {
		payload["rank_math_description"] = f.SEODescription
	}
	if len(payload) == 1 {
		return nil
	}
	var resp struct {
		Success bool `json:"success"`
	}
	if err := p.doJSON(ctx, "update rank math meta", http.MethodPost, p.base+rankMathPath, payload, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w (is the rank math api plugin active?)", err)
		}
		return err
	}
	if !resp.Success {
		return fmt.Errorf("wordpress update rank math meta: endpoint reported failure for post %d", postID)
	}
	p.log.Info("rank math meta updated", "post_id", postID)
	return nil
}

// attachFeaturedImage uploads the image, sets its alt text and links it as
// featured media. Every failure here is a warning.
func (p *Publisher) attachFeaturedImage(ctx context.Context, postID int64, path, alt string) (int64, []string) {
	data, err := os.ReadFile(path)
	if err != nil {
		p.log.Warn("featured image unreadable", "path", path, "error", err)
		return 0, []string{fmt.Sprintf("featured image skipped: %v", err)}
	}
	name := filepath.Base(path)
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+mediaPath, bytes.NewReader(data))
	if err != nil {
		return 0, []string{err.Error()}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	var media struct {
		ID int64 `json:"id"`
	}
	if err := p.send(req, "upload media", &media); err != nil {
		p.log.Warn("media upload failed", "file", name, "error", err)
		return 0, []string{err.Error()}
	}
	if media.ID == 0 {
		return 0, []string{"wordpress upload media: response carried no id"}
	}
	p.log.Info("media uploaded", "file", name, "media_id", media.ID)

	var warnings []string
	mediaURL := p.base + mediaPath + "/" + strconv.FormatInt(media.ID, 10)
	if err := p.doJSON(ctx, "update alt text", http.MethodPost, mediaURL, map[string]string{"alt_text": alt}, nil); err != nil {
		p.log.Warn("alt text update failed", "media_id", media.ID, "error", err)
		warnings = append(warnings, err.Error())
	}
	postURL := p.base + postsPath + "/" + strconv.FormatInt(postID, 10)
	if err := p.doJSON(ctx, "set featured media", http.MethodPost, postURL, map[string]int64{"featured_media": media.ID}, nil); err != nil {
		p.log.Warn("featured media link failed", "post_id", postID, "error", err)
		warnings = append(warnings, err.Error())
	} else {
		p.log.Info("featured image set", "post_id", postID, "media_id", media.ID)
	}
	return media.ID, warnings
}

func (p *Publisher) doJSON(ctx context.Context, step, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("wordpress %s: encode: %w", step, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return p.send(req, step, out)
}

func (p *Publisher) send(req *http.Request, step string, out any) error {
	req.SetBasicAuth(p.cfg.Username, p.cfg.AppPassword)
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("wordpress %s: %w", step, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("wordpress %s: read body: %w", step, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Step: step, StatusCode: resp.StatusCode, Body: logger.Preview(strings.TrimSpace(string(raw)), 300)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("wordpress %s: decode response: %w", step, err)
	}
	return nil
}

func mdToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// defaultDigest 取正文前 limit 个字符（按 rune）作摘要。
func defaultDigest(md string, limit int) string {
	joined := strings.Join(strings.Fields(md), " ")
	runes := []rune(joined)
	if len(runes) <= limit {
		return joined
	}
	return string(runes[:limit])
}

func previewLink(link string) string {
	if link == "" {
		return ""
	}
	if strings.Contains(link, "?") {
		return link + "&preview=true"
	}
	return link + "?preview=true"
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
