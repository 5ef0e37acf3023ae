package extractor

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
)

// Service converts captured HTML into markdown plus page metadata.
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new extractor service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
	}
}

// Extract converts HTML to markdown and pulls out the title and counts.
// baseURL is used for resolving relative links. Structurally empty input
// fails with an extraction error; conversion failures fall back to tag
// stripping rather than losing the page.
func (s *Service) Extract(html string, sourceURL string) (*interfaces.ExtractResult, error) {
	if strings.TrimSpace(html) == "" {
		return nil, jobs.NewError(jobs.ErrorKindExtractionError, "empty HTML content for %s", sourceURL)
	}

	s.logger.Debug().
		Int("html_length", len(html)).
		Str("url", sourceURL).
		Msg("Extracting page content")

	markdown := s.htmlToMarkdown(html, sourceURL)
	if strings.TrimSpace(markdown) == "" {
		return nil, jobs.NewError(jobs.ErrorKindExtractionError, "no textual content extracted from %s", sourceURL)
	}

	title := extractTitle(html)

	result := &interfaces.ExtractResult{
		Markdown:       markdown,
		Title:          title,
		CharacterCount: len(markdown),
		WordCount:      len(strings.Fields(markdown)),
	}

	s.logger.Debug().
		Str("url", sourceURL).
		Str("title", title).
		Int("character_count", result.CharacterCount).
		Int("word_count", result.WordCount).
		Msg("Page content extracted")

	return result, nil
}

// htmlToMarkdown converts HTML to markdown with a tag-strip fallback.
func (s *Service) htmlToMarkdown(html string, baseURL string) string {
	converter := md.NewConverter(baseURL, true, nil)
	converted, err := converter.ConvertString(html)
	if err != nil {
		s.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, using fallback")
		return stripHTMLTags(html)
	}

	if strings.TrimSpace(converted) == "" {
		s.logger.Warn().
			Int("html_length", len(html)).
			Msg("HTML to markdown conversion produced empty output, applying fallback")
		return stripHTMLTags(html)
	}

	return converted
}

// extractTitle pulls the page title using a priority chain:
// <title> -> og:title -> first <h1> -> twitter:title.
func extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}

	if ogTitle, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if title := strings.TrimSpace(ogTitle); title != "" {
			return title
		}
	}

	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		return title
	}

	if twitterTitle, ok := doc.Find(`meta[name="twitter:title"]`).Attr("content"); ok {
		if title := strings.TrimSpace(twitterTitle); title != "" {
			return title
		}
	}

	return ""
}

// stripHTMLTags removes basic HTML tags for fallback cases
func stripHTMLTags(htmlStr string) string {
	// Remove HTML tags using regex
	re := regexp.MustCompile(`<[^>]*>`)
	stripped := re.ReplaceAllString(htmlStr, "")

	// Clean up multiple whitespaces
	spaceRe := regexp.MustCompile(`\s+`)
	cleaned := spaceRe.ReplaceAllString(stripped, " ")

	// Decode HTML entities (basic set)
	cleaned = strings.ReplaceAll(cleaned, "&amp;", "&")
	cleaned = strings.ReplaceAll(cleaned, "&lt;", "<")
	cleaned = strings.ReplaceAll(cleaned, "&gt;", ">")
	cleaned = strings.ReplaceAll(cleaned, "&quot;", "\"")
	cleaned = strings.ReplaceAll(cleaned, "&#39;", "'")
	cleaned = strings.ReplaceAll(cleaned, "&nbsp;", " ")

	return strings.TrimSpace(cleaned)
}
