package crawler

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	apperrors "github.com/noodle-search/noodle/pkg/errors"
)

// Page is what the crawler keeps from a fetched HTML document.
type Page struct {
	Title     string
	Paragraph string
	Links     []string
}

// Extractor turns raw HTML into a Page.
type Extractor interface {
	Extract(r io.Reader) (Page, error)
}

// HTMLExtractor reads the <title>, the first <p> and every <a href> in
// document order.
type HTMLExtractor struct{}

func (HTMLExtractor) Extract(r io.Reader) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Page{}, apperrors.Newf(apperrors.ErrParse, 0, "parsing html: %v", err)
	}

	title := doc.Find("title").First()
	if title.Length() == 0 {
		return Page{}, apperrors.New(apperrors.ErrParse, 0, "no <title> element")
	}
	para := doc.Find("p").First()
	if para.Length() == 0 {
		return Page{}, apperrors.New(apperrors.ErrParse, 0, "no <p> element")
	}

	page := Page{
		Title:     collapseSpace(title.Text()),
		Paragraph: collapseSpace(para.Text()),
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href := strings.TrimSpace(s.AttrOr("href", "")); href != "" {
			page.Links = append(page.Links, href)
		}
	})
	return page, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
