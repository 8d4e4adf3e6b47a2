package extraction

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/RadhiFadlillah/whatlanggo"
	"github.com/araddon/dateparse"
	"golang.org/x/net/html"

	"github.com/hindsightlabs/hindsight/pkg/model"
)

// Boilerplate elements stripped from the document before any text is read.
const strippedElements = "script, style, nav, header, footer, aside, menu, menuitem, noscript, object, embed, iframe, frame, frameset, canvas"

// Candidate containers for the main content, tried in order. The candidate
// with the most text wins.
var contentSelectors = []string{
	"[role=main]", "main", "article",
	"#content", "#main", "#primary", "#post", "#article",
	".content", ".main", ".primary", ".post", ".article",
	".entry-content", ".post-content", ".article-content", ".content-body", ".main-content",
}

// Chrome removed from within the selected content.
const excludedDescendants = "nav, header, footer, aside, form, " +
	".nav, .navbar, .menu, .sidebar, .ad, .ads, .advertisement, .social, .share, " +
	".comments, .comment, .related, .breadcrumb, .pagination, .footer, .header"

// Tags whose text is concatenated when no container and no body text is
// found. Short fragments are navigation debris, not content.
const fallbackContentTags = "article, section, div, p, h1, h2, h3, h4, h5, h6, blockquote, pre, code"

const minFallbackTagText = 50

// Statistical language detection needs a reasonable sample.
const langDetectMinChars = 200

// HTMLExtractor turns archived HTML into clean text, markdown and metadata.
type HTMLExtractor struct{}

func (e *HTMLExtractor) Extract(raw []byte) (*model.ExtractedContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(bytes.ToValidUTF8(raw, []byte("�"))))
	if err != nil {
		return nil, &ContentExtractionError{Reason: "parsing html", Cause: err}
	}

	removeComments(doc)
	doc.Find(strippedElements).Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	description := metaContent(doc, `meta[name="description"]`, `meta[property="og:description"]`)
	keywords := metaContent(doc, `meta[name="keywords"]`)
	author := metaContent(doc,
		`meta[name="author"]`, `meta[name="article:author"]`,
		`meta[property="article:author"]`, `meta[property="og:author"]`)
	published := parsePublishedDate(metaContent(doc,
		`meta[name="date"]`, `meta[name="published"]`, `meta[name="article:published_time"]`,
		`meta[property="article:published_time"]`))

	content := selectMainContent(doc)
	text := collapseWhitespace(selectionText(content))
	markdown := toMarkdown(content)

	language := documentLanguage(doc)
	if language == "" && len(text) >= langDetectMinChars {
		language = detectLanguage(text)
	}

	return model.NewExtractedContent(model.ExtractedContent{
		Title:            title,
		Text:             text,
		Markdown:         markdown,
		MetaDescription:  description,
		MetaKeywords:     keywords,
		Author:           author,
		PublishedDate:    published,
		Language:         language,
		ExtractionMethod: "html",
	}), nil
}

// selectMainContent picks the densest content container. With no candidate it
// falls back to the body, then to any content-bearing tags.
func selectMainContent(doc *goquery.Document) *goquery.Selection {
	var best *goquery.Selection
	bestLen := 0
	for _, sel := range contentSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if l := len(strings.TrimSpace(s.Text())); l > bestLen {
				best, bestLen = s, l
			}
		})
	}
	if best != nil {
		best.Find(excludedDescendants).Remove()
		return best
	}

	body := doc.Find("body").First()
	body.Find(excludedDescendants).Remove()
	if strings.TrimSpace(body.Text()) != "" {
		return body
	}

	return doc.Find(fallbackContentTags).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return len(strings.TrimSpace(s.Text())) > minFallbackTagText
	})
}

func selectionText(s *goquery.Selection) string {
	if s.Length() <= 1 {
		return s.Text()
	}
	var sb strings.Builder
	s.Each(func(_ int, n *goquery.Selection) {
		sb.WriteString(n.Text())
		sb.WriteString(" ")
	})
	return sb.String()
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// parsePublishedDate normalizes the free-form dates meta tags carry.
// Anything unparseable is dropped rather than guessed at.
func parsePublishedDate(raw string) string {
	if raw == "" {
		return ""
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// documentLanguage reads the declared language and keeps the primary subtag:
// "en-US" becomes "en".
func documentLanguage(doc *goquery.Document) string {
	root := doc.Find("html").First()
	lang, ok := root.Attr("lang")
	if !ok || strings.TrimSpace(lang) == "" {
		lang = root.AttrOr("xml:lang", "")
	}
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}

func detectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return info.Lang.Iso6393()
}

func toMarkdown(content *goquery.Selection) string {
	var sb strings.Builder
	content.Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			sb.WriteString(h)
			sb.WriteString("\n")
		}
	})

	md, err := htmltomarkdown.ConvertString(sb.String())
	if err != nil {
		md = fallbackMarkdown(content)
	}
	return strings.TrimSpace(collapseBlankLines(md))
}

// fallbackMarkdown renders just enough structure to stay searchable when the
// converter rejects the document.
func fallbackMarkdown(content *goquery.Selection) string {
	var sb strings.Builder
	content.Find("h1, h2, h3, h4, h5, h6, p, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := collapseWhitespace(s.Text())
		if text == "" {
			return
		}
		switch name := goquery.NodeName(s); name {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString(strings.Repeat("#", int(name[1]-'0')))
			sb.WriteString(" ")
			sb.WriteString(text)
		case "blockquote":
			sb.WriteString("> ")
			sb.WriteString(text)
		default:
			sb.WriteString(text)
		}
		sb.WriteString("\n\n")
	})
	return sb.String()
}

func removeComments(doc *goquery.Document) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if c.Type == html.CommentNode {
				n.RemoveChild(c)
			} else {
				walk(c)
			}
			c = next
		}
	}
	for _, root := range doc.Nodes {
		walk(root)
	}
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	blankLineRun  = regexp.MustCompile(`\n{3,}`)
)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func collapseBlankLines(s string) string {
	return blankLineRun.ReplaceAllString(s, "\n\n")
}
