package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/browser/browsertest"
)

func mustDoc(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"8(495)1234567", "+74951234567", true},
		{"+7 (495) 123-45-67", "+74951234567", true},
		{"4951234567", "+74951234567", true},
		{"7 495 123 45 67", "+74951234567", true},
		{"123", "", false},
		{"", "", false},
		{"8 800 555 35 35 12", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizePhone(tc.raw)
		require.Equal(t, tc.ok, ok, tc.raw)
		require.Equal(t, tc.want, got, tc.raw)
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	t.Parallel()

	first, ok := NormalizePhone("8(495)1234567")
	require.True(t, ok)
	second, ok := NormalizePhone(first)
	require.True(t, ok)
	require.Equal(t, first, second)
}

func TestExtractPhonesRegionsAndTelLinks(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<html><body>
		<header>Звоните: 8(495)1234567</header>
		<main>Not a contact region: 8 (812) 765-43-21</main>
		<div class="contacts-block">+7 (495) 123-45-67 и <b>8 800</b> 555-35-35</div>
		<a href="tel:+7-921-000-11-22">позвонить</a>
		<footer>ИНН 5003052454, код 123</footer>
	</body></html>`)

	require.Equal(t, []string{"+74951234567", "+78005553535", "+79210001122"}, ExtractPhones(doc))
}

func TestExtractPhonesUnspacedAfterLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page string
		want []string
	}{
		{"label and space", `<footer>Телефон: 89161234567</footer>`, []string{"+79161234567"}},
		{"short label", `<footer>тел 84951234567</footer>`, []string{"+74951234567"}},
		{"no space", `<footer>Телефон:89161234567</footer>`, []string{"+79161234567"}},
		{"after requisites", `<div class="contacts">ОГРН 1025003213179 тел 84951234567</div>`, []string{"+74951234567"}},
		{"uppercase tel link", `<header><a href="TEL:+74951234567">звонок</a></header>`, []string{"+74951234567"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			doc := mustDoc(t, "<html><body>"+tc.page+"</body></html>")
			require.Equal(t, tc.want, ExtractPhones(doc))
		})
	}
}

func TestExtractPhonesEmpty(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<html><body><p>8(495)1234567</p></body></html>`)
	require.Empty(t, ExtractPhones(doc))
}

func TestExtractINNsFromLabeledText(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<html><body><p>ИНН: 5003052454, ОГРН 1025003213179</p></body></html>`)
	require.Equal(t, []string{"5003052454"}, ExtractINNs(doc))
}

func TestExtractINNsPrefersRequisiteRegions(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<html><body>
		<p>Заказ № 1234567890 оформлен</p>
		<div class="company-requisites">ИНН/КПП 7707083893 / 773601001</div>
		<footer>© 2024 ООО «Ромашка», ИНН 500100732259</footer>
	</body></html>`)

	// the order number in the body is ignored because the regions matched
	require.Equal(t, []string{"500100732259", "7707083893"}, ExtractINNs(doc))
}

func TestExtractINNsFallsBackToBody(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<html><body>
		<footer>Все права защищены</footer>
		<div>Реквизиты: ИНН 7707083893</div>
		<script>var inn = "1111111111";</script>
	</body></html>`)

	require.Equal(t, []string{"7707083893"}, ExtractINNs(doc))
}

func TestFindINNsRejectsWrongLengths(t *testing.T) {
	t.Parallel()

	require.Empty(t, FindINNs("ИНН 123456789 КПП 773601001 ОГРН 1027700132195"))
	require.Equal(t, []string{"5003052454"}, FindINNs("ИНН5003052454"))
	require.Equal(t, []string{"5003052454"}, FindINNs("инн № 5003052454; 5003052454"))
}

func TestValidINNChecksum(t *testing.T) {
	t.Parallel()

	require.True(t, ValidINNChecksum("5003052454"))
	require.True(t, ValidINNChecksum("7707083893"))
	require.True(t, ValidINNChecksum("500100732259"))
	require.False(t, ValidINNChecksum("5003052455"))
	require.False(t, ValidINNChecksum("1234567890"))
	require.False(t, ValidINNChecksum("500100732250"))
	require.False(t, ValidINNChecksum("50030524"))
}

func TestExtractorChecksumFilter(t *testing.T) {
	t.Parallel()

	page := `<html><body><footer>ИНН 5003052454, ИНН 1234567890, тел. 8(495)1234567</footer></body></html>`

	loose, err := New(Config{}, nil).ExtractHTML(page)
	require.NoError(t, err)
	require.Equal(t, []string{"1234567890", "5003052454"}, loose.INNs)

	strict, err := New(Config{INNChecksum: true}, nil).ExtractHTML(page)
	require.NoError(t, err)
	require.Equal(t, []string{"5003052454"}, strict.INNs)
	require.Equal(t, []string{"+74951234567"}, strict.Phones)
}

func TestExtractorReadsSession(t *testing.T) {
	t.Parallel()

	sess := browsertest.New().AddPage("https://example.ru/", `<html><body>
		<div class="phone">8 (495) 123-45-67</div>
		<div class="legal-info">ИНН 7707083893</div>
	</body></html>`)
	ctx := context.Background()
	require.NoError(t, sess.Open(ctx, "https://example.ru/"))

	contacts, err := New(Config{}, nil).Extract(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, []string{"+74951234567"}, contacts.Phones)
	require.Equal(t, []string{"7707083893"}, contacts.INNs)
}
