package recon

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/vulnverified/certscan/internal/engine"
)

// ParseCertificateIDs extracts certificate IDs from a crt.sh search page.
//
// The result rows live in the first table nested inside the page's second
// table; the ID is the link text of the first centered cell of each row.
// found is false when that table is missing or has no data rows, which is
// a normal "nothing matched" answer rather than an error.
func ParseCertificateIDs(r io.Reader) (ids []string, found bool, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, false, err
	}

	ids = []string{}

	tables := doc.Find("table")
	if tables.Length() < 2 {
		return ids, false, nil
	}
	results := tables.Eq(1).Find("table").First()
	if results.Length() == 0 {
		return ids, false, nil
	}

	rows := results.Find("tr")
	if rows.Length() <= 1 {
		return ids, false, nil
	}

	// First row is the header.
	rows.Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
		link := row.Find(`td[style="text-align:center"]`).First().Find("a").First()
		if id := strings.TrimSpace(link.Text()); id != "" {
			ids = append(ids, id)
		}
	})

	return ids, true, nil
}

// ParseCertificateDetails returns the text of the certificate cell of a
// crt.sh certificate page, with line breaks kept. It returns
// engine.ErrNotFound when the page has no such cell.
func ParseCertificateDetails(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}

	cell := doc.Find("td.text").First()
	if cell.Length() == 0 {
		return "", engine.ErrNotFound
	}
	cell.Find("br").ReplaceWithHtml("\n")

	return strings.TrimSpace(cell.Text()), nil
}
