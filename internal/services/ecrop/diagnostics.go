package ecrop

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// portalMessageSelectors match the places the portal shows errors and notices
var portalMessageSelectors = []string{
	".swal2-title",
	".swal2-html-container",
	".alert",
	".error",
	".text-danger",
	".invalid-feedback",
}

// PortalMessages extracts the visible alert and validation texts from a page,
// in document order with duplicates removed
func PortalMessages(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var messages []string
	doc.Find(strings.Join(portalMessageSelectors, ", ")).Each(func(_ int, s *goquery.Selection) {
		if hidden(s) {
			return
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		messages = append(messages, text)
	})
	return messages, nil
}

// hidden reports inline-hidden elements or elements inside one
func hidden(s *goquery.Selection) bool {
	for node := s; node.Length() > 0; node = node.Parent() {
		if _, ok := node.Attr("hidden"); ok {
			return true
		}
		style, _ := node.Attr("style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}
