package note

import (
	"regexp"
	"strings"

	"vaultclip/internal/domain"
)

// RewriteRule is a pure transform over rendered Markdown.
type RewriteRule func(markdown string) string

var embeddedImage = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)

// RewriteImageLinks replaces remote image references of successfully
// localized images with vault embeds ("![[file]]"). It must run once, on the
// final rendered text.
func RewriteImageLinks(markdown string, outcomes []domain.ImageOutcome) string {
	for _, o := range outcomes {
		if !o.Success || o.OriginalURL == "" || o.RelativePath == "" {
			continue
		}
		for _, rule := range rewriteRules(o) {
			markdown = rule(markdown)
		}
	}
	return markdown
}

// rewriteRules returns the rules for one outcome, in application order:
// exact embed, previously malformed embed-plus-target, then a match on the
// final path segment to absorb URL normalization differences.
func rewriteRules(o domain.ImageOutcome) []RewriteRule {
	embed := "![[" + lastSegment(o.RelativePath) + "]]"
	quoted := regexp.QuoteMeta(o.OriginalURL)

	exact := regexp.MustCompile(`(?i)!\[[^\]]*\]\(` + quoted + `(?:\s+"[^"]*")?\)`)
	malformed := regexp.MustCompile(`(?i)!\[\[[^\]]+\]\]\(` + quoted + `\)`)

	rules := []RewriteRule{
		func(s string) string { return exact.ReplaceAllLiteralString(s, embed) },
		func(s string) string { return malformed.ReplaceAllLiteralString(s, embed) },
	}

	if name := lastSegment(o.OriginalURL); name != "" {
		rules = append(rules, func(s string) string {
			return embeddedImage.ReplaceAllStringFunc(s, func(match string) string {
				target := embeddedImage.FindStringSubmatch(match)[1]
				if lastSegment(target) == name {
					return embed
				}
				return match
			})
		})
	}
	return rules
}

func lastSegment(s string) string {
	return s[strings.LastIndex(s, "/")+1:]
}
