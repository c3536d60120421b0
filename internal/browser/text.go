// internal/browser/text.go
package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// VisibleText extracts the human-readable text of an HTML document with
// whitespace collapsed. Script, style and template contents are dropped.
func VisibleText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse page html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return strings.Join(strings.Fields(root.Text()), " "), nil
}
