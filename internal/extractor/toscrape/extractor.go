// Package toscrape extracts quotes and authors from pages laid out like
// quotes.toscrape.com.
package toscrape

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// Selectors for the listing and author page layouts.
const (
	selQuote      = ".quote"
	selText       = ".text"
	selAuthor     = ".author"
	selTag        = ".tags .tag"
	selAuthorLink = "span a[href]"
	selNext       = "li.next"

	selAuthorTitle    = ".author-title"
	selAuthorDesc     = ".author-description"
	selAuthorBornDate = ".author-born-date"
	selAuthorBornLoc  = ".author-born-location"
)

// Extractor implements crawler.PageExtractor and crawler.AuthorExtractor.
type Extractor struct {
	base *url.URL
}

// New returns an Extractor that resolves relative author links against
// baseURL when a response carries no URL of its own.
func New(baseURL string) (*Extractor, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Extractor{base: u}, nil
}

// ExtractPage returns the quotes on a listing page in document order. A page
// without any quote containers is valid and yields no quotes.
func (e *Extractor) ExtractPage(resp crawler.FetchResponse) (crawler.PageResult, error) {
	doc, err := parse(resp)
	if err != nil {
		return crawler.PageResult{}, err
	}
	base := e.resolveBase(resp.URL)

	var (
		quotes  []crawler.Quote
		extrErr *crawler.ExtractionError
	)
	doc.Find(selQuote).EachWithBreak(func(i int, s *goquery.Selection) bool {
		q, missing := extractQuote(s, base)
		if missing != "" {
			extrErr = &crawler.ExtractionError{
				Target: resp.URL,
				Field:  missing,
				Err:    fmt.Errorf("quote %d", i+1),
			}
			return false
		}
		quotes = append(quotes, q)
		return true
	})
	if extrErr != nil {
		return crawler.PageResult{}, extrErr
	}

	return crawler.PageResult{
		Quotes:  quotes,
		HasNext: doc.Find(selNext).Length() > 0,
	}, nil
}

// ExtractAuthor reads the author detail fields. Every field is required.
func (e *Extractor) ExtractAuthor(resp crawler.FetchResponse) (crawler.Author, error) {
	doc, err := parse(resp)
	if err != nil {
		return crawler.Author{}, err
	}

	fields := make(map[string]string, 4)
	for _, sel := range []string{selAuthorTitle, selAuthorDesc, selAuthorBornDate, selAuthorBornLoc} {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			return crawler.Author{}, &crawler.ExtractionError{Target: resp.URL, Field: sel}
		}
		fields[sel] = strings.TrimSpace(node.Text())
	}

	return crawler.Author{
		Name:         fields[selAuthorTitle],
		Description:  fields[selAuthorDesc],
		BornDate:     fields[selAuthorBornDate],
		BornLocation: fields[selAuthorBornLoc],
	}, nil
}

// extractQuote returns the selector of the first missing required field.
func extractQuote(s *goquery.Selection, base *url.URL) (crawler.Quote, string) {
	text := s.Find(selText).First()
	if text.Length() == 0 {
		return crawler.Quote{}, selText
	}
	author := s.Find(selAuthor).First()
	if author.Length() == 0 {
		return crawler.Quote{}, selAuthor
	}
	href, ok := s.Find(selAuthorLink).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return crawler.Quote{}, selAuthorLink
	}
	link, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return crawler.Quote{}, selAuthorLink
	}

	tags := []string{}
	s.Find(selTag).Each(func(_ int, t *goquery.Selection) {
		tags = append(tags, strings.TrimSpace(t.Text()))
	})

	return crawler.Quote{
		Text:      strings.TrimSpace(text.Text()),
		Author:    strings.TrimSpace(author.Text()),
		Tags:      tags,
		AuthorURL: base.ResolveReference(link).String(),
	}, ""
}

func (e *Extractor) resolveBase(pageURL string) *url.URL {
	if pageURL == "" {
		return e.base
	}
	u, err := url.Parse(pageURL)
	if err != nil || !u.IsAbs() {
		return e.base
	}
	return u
}

// parse decodes the body to UTF-8 using the declared content type before
// building the document.
func parse(resp crawler.FetchResponse) (*goquery.Document, error) {
	reader, err := charset.NewReader(bytes.NewReader(resp.Body), resp.Headers.Get("Content-Type"))
	if err != nil {
		return nil, &crawler.ExtractionError{Target: resp.URL, Field: "body", Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, &crawler.ExtractionError{Target: resp.URL, Field: "body", Err: err}
	}
	return doc, nil
}
