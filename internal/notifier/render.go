package notifier

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/pauljones0/skuwatch/internal/models"
	"github.com/pauljones0/skuwatch/internal/util"
)

// Format renders inline markup for one chat platform.
type Format interface {
	Escape(s string) string
	Link(text, url string) string
	Bold(s string) string
	Code(s string) string
}

type htmlFormat struct{}

func (htmlFormat) Escape(s string) string { return html.EscapeString(s) }
func (htmlFormat) Link(text, url string) string {
	return `<a href="` + html.EscapeString(url) + `">` + html.EscapeString(text) + `</a>`
}
func (htmlFormat) Bold(s string) string { return "<b>" + s + "</b>" }
func (htmlFormat) Code(s string) string { return "<code>" + html.EscapeString(s) + "</code>" }

var markdownEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`, "~", `\~`)

type markdownFormat struct{}

func (markdownFormat) Escape(s string) string       { return markdownEscaper.Replace(s) }
func (markdownFormat) Link(text, url string) string { return "[" + markdownEscaper.Replace(text) + "](" + url + ")" }
func (markdownFormat) Bold(s string) string         { return "**" + s + "**" }
func (markdownFormat) Code(s string) string         { return "`" + s + "`" }

var (
	// HTML is Telegram's HTML parse mode.
	HTML Format = htmlFormat{}
	// Markdown is Discord's markdown.
	Markdown Format = markdownFormat{}
)

const (
	iconInStock    = "✅"
	iconOutOfStock = "🚫"
	iconWarning    = "⚠️"
)

// LineOptions controls ItemLine. With Icon set, items whose error count
// exceeds ErrorThreshold get a warning icon instead of the stock icon.
type LineOptions struct {
	Icon           bool
	ErrorThreshold int
}

// Price renders minor units with currency, e.g. "1299.95 EUR".
func Price(minor int64, currency string) string {
	return util.FormatMinor(minor) + " " + currency
}

// ItemLine renders a tracked item as
//
//	[BC] Product name (linked)
//	✅ Variant label 12.34 EUR
func ItemLine(f Format, item models.TrackedItem, opts LineOptions) string {
	var b strings.Builder
	b.WriteString(f.Code("[" + string(item.Store) + "]"))
	b.WriteString(" ")
	b.WriteString(f.Link(item.Name, item.URL))
	b.WriteString("\n")
	if opts.Icon {
		icon := iconOutOfStock
		if item.InStock {
			icon = iconInStock
		}
		if item.ErrorCount > opts.ErrorThreshold {
			icon = iconWarning
		}
		b.WriteString(icon + " ")
	}
	if item.Label != "" {
		b.WriteString(f.Escape(item.Label) + " ")
	}
	b.WriteString(f.Bold(Price(item.Price, item.Currency)))
	return b.String()
}

// WasPrice renders the " (was: 50.00 EUR)" suffix of price change lines.
func WasPrice(old int64, currency string) string {
	return fmt.Sprintf(" (was: %s)", Price(old, currency))
}

// Paginate joins blocks with sep into pages of at most limit characters.
// A block longer than limit is split across pages.
func Paginate(blocks []string, limit int, sep string) []string {
	var pages []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			pages = append(pages, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	sepLen := utf8.RuneCountInString(sep)

	for _, block := range blocks {
		for _, part := range splitRunes(block, limit) {
			n := utf8.RuneCountInString(part)
			need := n
			if curLen > 0 {
				need += sepLen
			}
			if curLen+need > limit {
				flush()
				need = n
			}
			if curLen > 0 {
				cur.WriteString(sep)
			}
			cur.WriteString(part)
			curLen += need
		}
	}
	flush()
	return pages
}

func splitRunes(s string, limit int) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var parts []string
	runes := []rune(s)
	for len(runes) > limit {
		parts = append(parts, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
