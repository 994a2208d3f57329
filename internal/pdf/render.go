package pdf

import (
	"bytes"
	"fmt"

	"github.com/phpdave11/gofpdf"

	"github.com/invoicerhq/invoicer/internal/models"
)

// Render produces the PDF bytes for one invoice snapshot. The caller decides
// what to do with them: stream as a download or attach to an email. Any
// failure aborts the whole document; partial output is never returned.
func Render(inv *models.Invoice) ([]byte, error) {
	layout, err := Compose(inv)
	if err != nil {
		return nil, fmt.Errorf("compose invoice %s: %w", inv.Number, err)
	}

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetAutoPageBreak(false, 0)
	doc.SetDrawColor(60, 60, 60)
	// Core fonts are cp1252; currency symbols arrive as UTF-8.
	tr := doc.UnicodeTranslatorFromDescriptor("")

	for page := 0; page < layout.Pages; page++ {
		doc.AddPage()
		for _, t := range layout.Texts {
			if t.Page != page {
				continue
			}
			style := ""
			if t.Bold {
				style = "B"
			}
			doc.SetFont("Helvetica", style, t.Size)
			value := tr(t.Value)
			x := t.X
			if t.Align == AlignRight {
				x -= doc.GetStringWidth(value)
			}
			doc.Text(x, t.Y, value)
		}
		for _, r := range layout.Rules {
			if r.Page != page {
				continue
			}
			doc.Line(r.X1, r.Y1, r.X2, r.Y2)
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", inv.Number, err)
	}
	return buf.Bytes(), nil
}
