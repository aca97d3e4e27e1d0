package sales

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// PDFRenderer converts an HTML document into PDF bytes.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

var quoteDocument = template.Must(template.New("quote").Funcs(template.FuncMap{
	"money": func(cents int64) string {
		return formatCents(cents)
	},
	"lineTotal": func(l QuoteLine) int64 { return l.Total() },
	"date":      func(t time.Time) string { return t.Format("02 Jan 2006") },
}).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Number}}</title>
<style>
body{font-family:sans-serif;font-size:12px;color:#1d2330}
table{width:100%;border-collapse:collapse;margin-top:24px}
th,td{padding:6px;border-bottom:1px solid #ddd;text-align:left}
td.num,th.num{text-align:right}
</style></head>
<body>
<h1>Quote {{.Number}}</h1>
<p>Prepared for <strong>{{.CustomerName}}</strong> &lt;{{.CustomerEmail}}&gt;<br>
Valid until {{date .ValidUntil}}</p>
<table>
<thead><tr><th>Description</th><th class="num">Qty</th><th class="num">Unit</th><th class="num">Discount</th><th class="num">Amount</th></tr></thead>
<tbody>
{{range .Lines}}<tr><td>{{.Description}}</td><td class="num">{{.Quantity}}</td><td class="num">{{money .UnitCents}}</td><td class="num">{{if .DiscountPercent}}{{.DiscountPercent}}%{{end}}</td><td class="num">{{money (lineTotal .)}}</td></tr>
{{end}}</tbody>
<tfoot><tr><th colspan="4">Total ({{.Currency}})</th><th class="num">{{money .TotalCents}}</th></tr></tfoot>
</table>
{{with .Notes}}<p>{{.}}</p>{{end}}
</body></html>`))

// QuoteHTML renders the printable quote document.
func QuoteHTML(q Quote) (string, error) {
	var buf bytes.Buffer
	if err := quoteDocument.Execute(&buf, q); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// QuotePDF renders q through renderer.
func (s *Service) QuotePDF(ctx context.Context, renderer PDFRenderer, id int64) (Quote, []byte, error) {
	q, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return Quote{}, nil, err
	}
	html, err := QuoteHTML(q)
	if err != nil {
		return Quote{}, nil, err
	}
	pdf, err := renderer.RenderHTML(ctx, html)
	if err != nil {
		return Quote{}, nil, err
	}
	return q, pdf, nil
}

// formatCents renders minor units with English digit grouping, e.g. 123456 as
// "1,234.56".
func formatCents(cents int64) string {
	return amountPrinter.Sprintf("%.2f", float64(cents)/100)
}
