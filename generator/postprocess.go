package generator

import (
	"errors"
	"regexp"
	"strings"

	"auto_blog_package_publisher/recovery"
)

var (
	headingRe     = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	promptLabelRe = regexp.MustCompile(`(?i)^(image |video )?prompt:\s*`)
	slugUnsafeRe  = regexp.MustCompile(`[^a-z0-9-]+`)
)

// PostProcess 清理纯文本阶段（图片/视频提示词）的输出。
func PostProcess(raw string) (string, error) {
	text := recovery.StripFences(raw)
	text = promptLabelRe.ReplaceAllString(text, "")
	text = strings.Trim(strings.TrimSpace(text), `"`)
	if text == "" {
		return "", errors.New("model returned empty text")
	}
	return text, nil
}

// dropDuplicateTitle removes a leading "# <title>" heading from blog content
// when it repeats the post title; the CMS renders the title itself.
func dropDuplicateTitle(content, title string) string {
	md := strings.TrimSpace(content)
	loc := headingRe.FindStringSubmatchIndex(md)
	if loc == nil || loc[0] != 0 {
		return md
	}
	heading := strings.TrimSpace(md[loc[2]:loc[3]])
	if !strings.EqualFold(heading, strings.TrimSpace(title)) {
		return md
	}
	return strings.TrimSpace(md[loc[1]:])
}

// ThumbnailFilename 由 slug 推导缩略图文件名：<prefix>-<slug>.webp。
func ThumbnailFilename(prefix, slug string) string {
	s := slugUnsafeRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(slug)), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "missing-slug"
	}
	if prefix == "" {
		return s + ".webp"
	}
	return prefix + "-" + s + ".webp"
}
