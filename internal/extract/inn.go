package extract

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// innTiers are applied in priority order: label-anchored, requisite block,
// then bare digit runs.
var innTiers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ИНН[\s:№]*(\d{12}|\d{10})(?:\D|$)`),
	regexp.MustCompile(`(?i)(?:ОГРН|ИНН|КПП)[\s:]*(\d+)`),
	regexp.MustCompile(`\b(\d{12}|\d{10})\b`),
}

var innRegions = []string{
	"footer",
	`[class*="requisite"]`,
	`[class*="inn"]`,
	`[class*="legal"]`,
}

// ExtractINNs searches the requisite regions of doc for tax IDs, falling
// back to the whole body only when the regions yield nothing. The result
// is sorted and contains only 10- or 12-digit strings.
func ExtractINNs(doc *goquery.Document) []string {
	found := set{}
	for _, selector := range innRegions {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			matchINNs(Text(sel), found)
		})
	}
	if len(found) == 0 {
		matchINNs(Text(doc.Find("body")), found)
	}
	return found.sorted()
}

// FindINNs applies the tiers to free text.
func FindINNs(text string) []string {
	found := set{}
	matchINNs(text, found)
	return found.sorted()
}

func matchINNs(text string, found set) {
	for _, tier := range innTiers {
		for _, m := range tier.FindAllStringSubmatch(text, -1) {
			for _, group := range m[1:] {
				if validINNShape(group) {
					found.add(group)
				}
			}
		}
	}
}

func validINNShape(s string) bool {
	if len(s) != 10 && len(s) != 12 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

var (
	inn10Weights  = []int{2, 4, 10, 3, 5, 9, 4, 6, 8}
	inn12Weights1 = []int{7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
	inn12Weights2 = []int{3, 7, 2, 4, 10, 3, 5, 9, 4, 6, 8}
)

// ValidINNChecksum verifies the control digits of a 10- or 12-digit INN.
func ValidINNChecksum(inn string) bool {
	if !validINNShape(inn) {
		return false
	}
	switch len(inn) {
	case 10:
		return controlDigit(inn, inn10Weights) == int(inn[9]-'0')
	default:
		return controlDigit(inn, inn12Weights1) == int(inn[10]-'0') &&
			controlDigit(inn, inn12Weights2) == int(inn[11]-'0')
	}
}

func controlDigit(inn string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(inn[i]-'0') * w
	}
	return sum % 11 % 10
}
