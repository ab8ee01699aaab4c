package note

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vaultclip/internal/config"
	"vaultclip/internal/domain"
)

// BaseTag is always the first tag of a clipped note.
const BaseTag = "web-clip"

const clippedLayout = "2006-01-02 15:04"

type frontmatter struct {
	Title     string   `yaml:"title"`
	URL       string   `yaml:"url"`
	Clipped   string   `yaml:"clipped"`
	Author    string   `yaml:"author,omitempty"`
	Site      string   `yaml:"site,omitempty"`
	Published string   `yaml:"published,omitempty"`
	Tags      []string `yaml:"tags"`
}

// Input bundles everything a note is rendered from.
type Input struct {
	Page     domain.PageContent
	Settings config.Settings
	Tags     []string
	Notes    string
}

// Assemble renders a note. Identical inputs always produce identical output;
// times are rendered in UTC.
func Assemble(in Input, conv Converter) (domain.Document, error) {
	body, err := conv.Convert(in.Page.Content)
	if err != nil {
		return domain.Document{}, fmt.Errorf("convert content to markdown: %w", err)
	}
	return render(in, body)
}

// AssembleQuick renders a note without user tags or notes. When the HTML
// cannot be converted it falls back to the page's plain text.
func AssembleQuick(page domain.PageContent, s config.Settings, conv Converter) (domain.Document, error) {
	body, err := conv.Convert(page.Content)
	if err != nil || strings.TrimSpace(body) == "" {
		body = page.TextContent
		if body == "" {
			body = StripHTML(page.Content)
		}
	}
	return render(Input{Page: page, Settings: s}, body)
}

func render(in Input, body string) (domain.Document, error) {
	page := in.Page
	var b strings.Builder

	if in.Settings.IncludeMetadata {
		fm, err := renderFrontmatter(page, append([]string{BaseTag}, in.Tags...))
		if err != nil {
			return domain.Document{}, err
		}
		b.WriteString(fm)
		b.WriteString("\n")
	}

	title := page.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	fmt.Fprintf(&b, "> Source: [%s](%s)\n", sourceName(page), page.URL)
	if page.Byline != "" {
		fmt.Fprintf(&b, "> Author: %s\n", page.Byline)
	}
	fmt.Fprintf(&b, "> Clipped: %s\n\n", FormatClipped(page.ExtractedAt))

	if notes := strings.TrimSpace(in.Notes); notes != "" {
		fmt.Fprintf(&b, "## My Notes\n\n%s\n\n", notes)
	}
	if page.Excerpt != "" {
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", page.Excerpt)
	}

	b.WriteString("## Content\n\n")
	b.WriteString(body)

	return domain.Document{
		Filename: SanitizeFilename(page.Title),
		Content:  b.String(),
	}, nil
}

func renderFrontmatter(page domain.PageContent, tags []string) (string, error) {
	fm := frontmatter{
		Title:     page.Title,
		URL:       page.URL,
		Clipped:   formatTimestamp(page.ExtractedAt),
		Author:    page.Byline,
		Site:      page.SiteName,
		Published: page.PublishedTime,
		Tags:      tags,
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}
	buf.WriteString("---\n")
	return buf.String(), nil
}

func sourceName(page domain.PageContent) string {
	if page.SiteName != "" {
		return page.SiteName
	}
	if u, err := url.Parse(page.URL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return page.URL
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// FormatClipped renders the human-readable clip time.
func FormatClipped(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(clippedLayout)
}
