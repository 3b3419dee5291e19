package publisher

import (
	"os"
	"path/filepath"
	"strings"

	"auto_blog_package_publisher/generator"
)

// FromPackage builds publish fields from a generated package. The featured
// image is looked up in graphicsDir by the package's thumbnail filename.
func FromPackage(pkg generator.Package, graphicsDir string) Fields {
	f := Fields{
		Title:                   pkg.Title,
		Content:                 pkg.Content,
		Slug:                    pkg.Slug,
		Tags:                    pkg.Tags,
		PrimaryFocusKeyword:     pkg.PrimaryFocusKeyword,
		SecondaryFocusKeyword:   pkg.SecondaryFocusKeyword,
		AdditionalFocusKeywords: pkg.AdditionalFocusKeywords,
		SEOTitle:                pkg.SEOTitle,
		SEODescription:          pkg.MetaDescription,
		ImageAltText:            pkg.AltText,
	}
	if f.SEOTitle == "" {
		f.SEOTitle = pkg.Title
	}
	f.ImagePath = ResolveImage(graphicsDir, pkg.Filename)
	return f
}

// ResolveImage returns the image to feature for filename, preferring the
// "<base>_realistic.webp" variant. Empty when neither file exists.
func ResolveImage(graphicsDir, filename string) string {
	if filename == "" {
		return ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	for _, candidate := range []string{base + "_realistic.webp", filename} {
		path := filepath.Join(graphicsDir, candidate)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
