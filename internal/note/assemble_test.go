package note

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vaultclip/internal/config"
	"vaultclip/internal/domain"
)

type stubConverter struct {
	out string
	err error
}

func (s stubConverter) Convert(string) (string, error) { return s.out, s.err }

func samplePage() domain.PageContent {
	return domain.PageContent{
		Title:       "A",
		URL:         "https://x.com",
		Content:     "<p>body</p>",
		TextContent: "body",
		ExtractedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAssemble_MetadataHeader(t *testing.T) {
	doc, err := Assemble(Input{Page: samplePage(), Settings: config.DefaultSettings()}, stubConverter{out: "body"})
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(doc.Content, "---\n"))
	header := doc.Content[:strings.Index(doc.Content, "\n---\n")]
	assert.Contains(t, header, "title: A\n")
	assert.Contains(t, header, "url: https://x.com\n")
	assert.Contains(t, header, "2024-01-01T00:00:00Z")
	assert.Contains(t, header, "tags:\n")
	assert.Contains(t, header, "- web-clip")
	assert.NotContains(t, header, "author:")
	assert.Equal(t, "A", doc.Filename)
}

func TestAssemble_Layout(t *testing.T) {
	page := samplePage()
	page.Title = "My: Article/Test"
	page.Byline = "Jane Roe"
	page.SiteName = "Example"
	page.Excerpt = "Short summary"
	page.PublishedTime = "2023-12-31"

	s := config.DefaultSettings()
	s.IncludeMetadata = false
	doc, err := Assemble(Input{Page: page, Settings: s, Notes: "  remember this  "}, stubConverter{out: "converted"})
	require.NoError(t, err)

	want := "# My: Article/Test\n\n" +
		"> Source: [Example](https://x.com)\n" +
		"> Author: Jane Roe\n" +
		"> Clipped: 2024-01-01 00:00\n\n" +
		"## My Notes\n\nremember this\n\n" +
		"## Summary\n\nShort summary\n\n" +
		"## Content\n\nconverted"
	assert.Equal(t, want, doc.Content)
	assert.Equal(t, "My- Article-Test", doc.Filename)
}

func TestAssemble_TagsAndOptionalFields(t *testing.T) {
	page := samplePage()
	page.Byline = "Jane"
	page.SiteName = "Site: Name"
	page.PublishedTime = "2023-12-31T08:00:00Z"

	doc, err := Assemble(Input{
		Page:     page,
		Settings: config.DefaultSettings(),
		Tags:     []string{"go", "go"},
	}, stubConverter{out: ""})
	require.NoError(t, err)

	assert.Contains(t, doc.Content, "author: Jane\n")
	assert.Contains(t, doc.Content, "site: ")
	assert.NotContains(t, doc.Content, "site: Site: Name\n", "values with ': ' must be quoted")
	assert.Contains(t, doc.Content, "published:")
	assert.Equal(t, 2, strings.Count(doc.Content, "- go\n"), "user tags are not deduplicated")
	assert.Less(t, strings.Index(doc.Content, "- web-clip"), strings.Index(doc.Content, "- go"))
}

func TestAssemble_HostnameFallbackAndDeterminism(t *testing.T) {
	page := samplePage()
	page.URL = "https://blog.example.org/post/1"

	in := Input{Page: page, Settings: config.DefaultSettings(), Tags: []string{"t"}}
	a, err := Assemble(in, stubConverter{out: "x"})
	require.NoError(t, err)
	b, err := Assemble(in, stubConverter{out: "x"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Contains(t, a.Content, "> Source: [blog.example.org](https://blog.example.org/post/1)\n")
}

func TestAssemble_ConverterError(t *testing.T) {
	_, err := Assemble(Input{Page: samplePage()}, stubConverter{err: errors.New("bad html")})
	assert.Error(t, err)
}

func TestAssembleQuick_FallsBackToText(t *testing.T) {
	doc, err := AssembleQuick(samplePage(), config.DefaultSettings(), stubConverter{err: errors.New("bad html")})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(doc.Content, "## Content\n\nbody"))
	assert.NotContains(t, doc.Content, "## My Notes")
}

func TestMarkdownConverter(t *testing.T) {
	conv := NewConverter()
	html := `<h2>Heading</h2>
<p>Some <em>emphasis</em> and <strong>strong</strong>.</p>
<script>alert(1)</script><style>p{}</style><noscript>enable js</noscript>
<pre><code class="language-go">func main() {
	fmt.Println("*hi*")
}</code></pre>
<pre>plain block</pre>
<p><img src="https://cdn.example.com/img/a.png" alt="diagram"></p>`

	out, err := conv.Convert(html)
	require.NoError(t, err)

	assert.Contains(t, out, "## Heading")
	assert.Contains(t, out, "*emphasis*")
	assert.Contains(t, out, "**strong**")
	assert.NotContains(t, out, "alert(1)")
	assert.NotContains(t, out, "p{}")
	assert.NotContains(t, out, "enable js")
	assert.Contains(t, out, "```go\nfunc main() {\n\tfmt.Println(\"*hi*\")\n}\n```")
	assert.Contains(t, out, "```\nplain block\n```")
	assert.Contains(t, out, "![diagram](https://cdn.example.com/img/a.png)")
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Hello world", StripHTML("<div><script>x()</script><p>Hello</p>\n<p>world</p></div>"))
	assert.Equal(t, "", StripHTML(""))
}
