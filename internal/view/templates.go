package view

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/emporia/console/internal/access"
	"github.com/emporia/console/internal/shared"
	"github.com/emporia/console/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Nav         []access.NavItem
	Role        access.Role
	Data        any
}

var printer = message.NewPrinter(language.English)

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"formatMoney": formatMoney,
		"active": func(current, href string) bool {
			if href == "/" {
				return current == "/"
			}
			return len(current) >= len(href) && current[:len(href)] == href
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}

// formatMoney renders minor units in the given ISO currency. Unknown codes are
// printed verbatim in front of the amount.
func formatMoney(cents int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return printer.Sprintf("%s %.2f", code, float64(cents)/100)
	}
	return printer.Sprint(currency.Symbol(unit.Amount(float64(cents) / 100)))
}
