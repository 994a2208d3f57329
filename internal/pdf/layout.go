// Package pdf renders an invoice snapshot into a paginated document. The
// layout is computed first as a plain model of positioned elements, then
// painted; the model makes rendering deterministic and lets tests inspect
// exactly what a page will show.
package pdf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/invoicerhq/invoicer/internal/models"
	"github.com/invoicerhq/invoicer/internal/money"
)

// Page geometry in millimetres (A4 portrait).
const (
	pageTop     = 25.0
	marginLeft  = 20.0
	marginRight = 190.0
	printBottom = 265.0
	footerY     = 282.0

	addressLineStep = 6.0
	tableRowStep    = 8.0
	notesLineStep   = 5.0

	// Column anchors for the item table. Quantity, rate, and amount are
	// right-aligned against their anchor.
	colDescription = marginLeft
	colQuantity    = 120.0
	colRate        = 155.0
	colAmount      = marginRight

	// Word-wrap width for the notes block, in characters at 10pt.
	notesWrapWidth = 95
)

const footerText = "Thank you for your business!"

// Align controls horizontal anchoring of a text element.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Text is one positioned string on a page.
type Text struct {
	Page  int
	X, Y  float64
	Value string
	Size  float64
	Bold  bool
	Align Align
}

// Rule is one horizontal line on a page.
type Rule struct {
	Page   int
	X1, Y1 float64
	X2, Y2 float64
}

// Layout is the complete positioned-element model for one invoice document.
type Layout struct {
	Pages int
	Texts []Text
	Rules []Rule
}

// Contains reports whether any text element equals value exactly.
func (l *Layout) Contains(value string) bool {
	for _, t := range l.Texts {
		if t.Value == value {
			return true
		}
	}
	return false
}

// composer tracks the running vertical cursor and current page.
type composer struct {
	layout Layout
	page   int
	y      float64
}

func (c *composer) text(t Text) {
	t.Page = c.page
	c.layout.Texts = append(c.layout.Texts, t)
}

func (c *composer) rule(x1, y1, x2, y2 float64) {
	c.layout.Rules = append(c.layout.Rules, Rule{Page: c.page, X1: x1, Y1: y1, X2: x2, Y2: y2})
}

// ensure opens a new page when fewer than space millimetres remain above the
// bottom margin, so content never overwrites the footer area.
func (c *composer) ensure(space float64) {
	if c.y+space > printBottom {
		c.page++
		c.y = pageTop
	}
}

// Compose lays out one invoice. All currency strings come from the shared
// formatter; a formatting error aborts composition so no partial document is
// produced.
func Compose(inv *models.Invoice) (*Layout, error) {
	subtotal, err := money.Format(inv.Subtotal, inv.Currency)
	if err != nil {
		return nil, err
	}
	total, err := money.Format(inv.Total, inv.Currency)
	if err != nil {
		return nil, err
	}

	c := &composer{y: pageTop}

	// Title block, fixed positions.
	c.text(Text{X: marginLeft, Y: 25, Value: "INVOICE", Size: 24, Bold: true})
	c.text(Text{X: marginLeft, Y: 38, Value: "Invoice Number: " + inv.Number, Size: 11})
	c.text(Text{X: marginLeft, Y: 45, Value: "Issue Date: " + formatEpochDay(inv.CreatedAt), Size: 11})
	c.text(Text{X: marginLeft, Y: 51, Value: "Due Date: " + formatDueDate(inv.DueDate), Size: 11})
	c.text(Text{X: marginLeft, Y: 57, Value: "Status: " + statusLabel(inv.Status), Size: 11})

	// Recipient block.
	c.text(Text{X: marginLeft, Y: 72, Value: "Bill To:", Size: 12, Bold: true})
	c.text(Text{X: marginLeft, Y: 80, Value: inv.ClientName, Size: 11, Bold: true})
	c.text(Text{X: marginLeft, Y: 86, Value: inv.ClientEmail, Size: 10})
	y := 92.0
	for _, line := range strings.Split(inv.ClientAddress, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		c.text(Text{X: marginLeft, Y: y, Value: line, Size: 10})
		y += addressLineStep
	}

	// Item table.
	c.y = y + 10
	c.ensure(2 * tableRowStep)
	c.text(Text{X: colDescription, Y: c.y, Value: "Description", Size: 10, Bold: true})
	c.text(Text{X: colQuantity, Y: c.y, Value: "Quantity", Size: 10, Bold: true, Align: AlignRight})
	c.text(Text{X: colRate, Y: c.y, Value: "Rate", Size: 10, Bold: true, Align: AlignRight})
	c.text(Text{X: colAmount, Y: c.y, Value: "Amount", Size: 10, Bold: true, Align: AlignRight})
	c.rule(marginLeft, c.y+2, marginRight, c.y+2)
	c.y += tableRowStep

	for _, item := range inv.Items {
		rate, err := money.Format(item.Rate, inv.Currency)
		if err != nil {
			return nil, err
		}
		amount, err := money.Format(item.Amount, inv.Currency)
		if err != nil {
			return nil, err
		}
		c.ensure(tableRowStep)
		c.text(Text{X: colDescription, Y: c.y, Value: item.Description, Size: 10})
		c.text(Text{X: colQuantity, Y: c.y, Value: strconv.Itoa(item.Quantity), Size: 10, Align: AlignRight})
		c.text(Text{X: colRate, Y: c.y, Value: rate, Size: 10, Align: AlignRight})
		c.text(Text{X: colAmount, Y: c.y, Value: amount, Size: 10, Align: AlignRight})
		c.y += tableRowStep
	}

	// Summary block.
	c.y += 4
	c.ensure(3 * tableRowStep)
	c.text(Text{X: colQuantity, Y: c.y, Value: "Subtotal:", Size: 10})
	c.text(Text{X: colAmount, Y: c.y, Value: subtotal, Size: 10, Align: AlignRight})
	c.y += tableRowStep

	if inv.Tax > 0 {
		taxAmount, err := money.Format(inv.Total-inv.Subtotal, inv.Currency)
		if err != nil {
			return nil, err
		}
		label := fmt.Sprintf("Tax (%s%%):", strconv.FormatFloat(inv.Tax, 'f', -1, 64))
		c.text(Text{X: colQuantity, Y: c.y, Value: label, Size: 10})
		c.text(Text{X: colAmount, Y: c.y, Value: taxAmount, Size: 10, Align: AlignRight})
		c.y += tableRowStep
	}

	c.rule(colQuantity, c.y-4, marginRight, c.y-4)
	c.text(Text{X: colQuantity, Y: c.y, Value: "Total:", Size: 12, Bold: true})
	c.text(Text{X: colAmount, Y: c.y, Value: total, Size: 12, Bold: true, Align: AlignRight})
	c.y += tableRowStep

	// Notes block, only when present.
	if strings.TrimSpace(inv.Notes) != "" {
		c.y += 6
		c.ensure(2 * tableRowStep)
		c.text(Text{X: marginLeft, Y: c.y, Value: "Notes", Size: 11, Bold: true})
		c.y += 6
		for _, line := range wrap(inv.Notes, notesWrapWidth) {
			c.ensure(notesLineStep)
			c.text(Text{X: marginLeft, Y: c.y, Value: line, Size: 10})
			c.y += notesLineStep
		}
	}

	// Footer on the last page.
	c.text(Text{X: marginLeft, Y: footerY, Value: footerText, Size: 10})

	c.layout.Pages = c.page + 1
	return &c.layout, nil
}

// wrap splits text into lines of at most width characters, breaking on
// spaces. Explicit newlines in the input are respected.
func wrap(text string, width int) []string {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}
		line := words[0]
		for _, word := range words[1:] {
			if len(line)+1+len(word) > width {
				lines = append(lines, line)
				line = word
				continue
			}
			line += " " + word
		}
		lines = append(lines, line)
	}
	return lines
}

func formatEpochDay(millis int64) string {
	return time.UnixMilli(millis).UTC().Format("Jan 02, 2006")
}

func formatDueDate(due string) string {
	t, err := time.Parse("2006-01-02", due)
	if err != nil {
		return due
	}
	return t.Format("Jan 02, 2006")
}

func statusLabel(s models.InvoiceStatus) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}
