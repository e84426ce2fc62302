package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	phonePattern = regexp.MustCompile(`(?:(?:\+7|8|7)[\s\-]{0,2})?\(?\d{3}\)?[\s\-]{0,2}\d{3}[\s\-]?\d{2}[\s\-]?\d{2}`)
	nonDigit     = regexp.MustCompile(`\D`)

	requisiteLabels = []string{"ИНН", "ОГРН", "КПП", "ОКПО", "БИК"}

	phoneRegions = []string{
		"header",
		"footer",
		`[class*="contact"]`,
		`[class*="phone"]`,
		`[class*="tel"]`,
	}
)

// NormalizePhone converts a phone candidate to +7XXXXXXXXXX. The second
// return value is false when the candidate does not have exactly 11 digits
// after the country code is fixed up.
func NormalizePhone(raw string) (string, bool) {
	digits := nonDigit.ReplaceAllString(raw, "")
	switch {
	case strings.HasPrefix(digits, "8"):
		digits = "7" + digits[1:]
	case !strings.HasPrefix(digits, "7"):
		digits = "7" + digits
	}
	if len(digits) != 11 {
		return "", false
	}
	return "+" + digits, true
}

// ExtractPhones scans the contact regions of doc and its tel: links and
// returns the sorted set of normalized phone numbers.
func ExtractPhones(doc *goquery.Document) []string {
	found := set{}
	for _, selector := range phoneRegions {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			for _, candidate := range findPhones(Text(sel)) {
				if phone, ok := NormalizePhone(candidate); ok {
					found.add(phone)
				}
			}
		})
	}
	doc.Find(`a[href*="tel:" i]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		idx := strings.Index(strings.ToLower(href), "tel:")
		if idx < 0 {
			return
		}
		if phone, ok := NormalizePhone(strings.TrimSpace(href[idx+len("tel:"):])); ok {
			found.add(phone)
		}
	})
	return found.sorted()
}

// findPhones returns phone-shaped substrings not embedded in longer digit runs.
func findPhones(text string) []string {
	var out []string
	for _, loc := range phonePattern.FindAllStringIndex(text, -1) {
		if loc[0] > 0 && isDigit(text[loc[0]-1]) {
			continue
		}
		if loc[1] < len(text) && isDigit(text[loc[1]]) {
			continue
		}
		if requisiteLabelBefore(text[:loc[0]]) {
			continue
		}
		out = append(out, text[loc[0]:loc[1]])
	}
	return out
}

// requisiteLabelBefore reports whether the text right before a candidate
// labels it as a registration number rather than a phone.
func requisiteLabelBefore(prefix string) bool {
	if len(prefix) > 16 {
		prefix = prefix[len(prefix)-16:]
	}
	for _, label := range requisiteLabels {
		if strings.Contains(prefix, label) {
			return true
		}
	}
	return false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
