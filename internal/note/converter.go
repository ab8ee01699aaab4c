package note

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Converter turns extracted article HTML into Markdown.
type Converter interface {
	Convert(html string) (string, error)
}

var languageClass = regexp.MustCompile(`language-(\w+)`)

// MarkdownConverter renders ATX headings, fenced code blocks, and "*"
// emphasis, and drops script, style and noscript elements.
type MarkdownConverter struct {
	conv *md.Converter
}

func NewConverter() *MarkdownConverter {
	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle:   "atx",
		CodeBlockStyle: "fenced",
		EmDelimiter:    "*",
	})
	conv.Remove("script", "style", "noscript")
	conv.AddRules(fencedPreRule())
	return &MarkdownConverter{conv: conv}
}

func (c *MarkdownConverter) Convert(html string) (string, error) {
	return c.conv.ConvertString(html)
}

// fencedPreRule emits a fenced block for <pre>, tagged with the language hint
// of its <code> child (or of the <pre> itself).
func fencedPreRule() md.Rule {
	return md.Rule{
		Filter: []string{"pre"},
		Replacement: func(_ string, selec *goquery.Selection, _ *md.Options) *string {
			lang := codeLanguage(selec.Find("code").First())
			if lang == "" {
				lang = codeLanguage(selec)
			}
			code := strings.TrimSpace(selec.Text())
			return md.String("\n```" + lang + "\n" + code + "\n```\n")
		},
	}
}

func codeLanguage(s *goquery.Selection) string {
	class, ok := s.Attr("class")
	if !ok {
		return ""
	}
	if m := languageClass.FindStringSubmatch(class); m != nil {
		return m[1]
	}
	return ""
}
