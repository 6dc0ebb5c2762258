// Package web holds the shell page and the browser client.
package web

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"
)

//go:embed templates/index.html
var templates embed.FS

//go:embed static
var static embed.FS

var page = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"clock": func(t time.Time) string { return t.Local().Format("15:04") },
	"upper": strings.ToUpper,
}).ParseFS(templates, "templates/index.html"))

// Tab is one entry of the tool switcher.
type Tab struct {
	Kind   string
	Label  string
	Active bool
}

// Entry is one row of the history feed.
type Entry struct {
	Kind string
	Data string
	At   time.Time
}

// Page is everything the shell renders before the client takes over.
type Page struct {
	Theme      string // light, dark or system
	ActiveTool string
	Tabs       []Tab
	History    []Entry
	ShowClear  bool
	// Settings is the scanner configuration handed to the client as JSON.
	Settings template.JS
}

// ThemeClass is the class put on <html> so the first paint has the right
// colors. "system" is resolved by the client.
func (p Page) ThemeClass() string {
	if p.Theme == "dark" {
		return "dark"
	}
	if p.Theme == "light" {
		return "light"
	}
	return ""
}

// Render writes the shell page.
func Render(w io.Writer, p Page) error {
	return page.Execute(w, p)
}

// Static serves the client assets.
func Static() http.FileSystem {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
