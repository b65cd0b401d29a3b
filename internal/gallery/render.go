package gallery

import (
	"embed"
	"html/template"
	"io"
	"regexp"
)

//go:embed templates/*.html
var templateFS embed.FS

const pendingDescription = "No description available"

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"safeCSS": safeCSS,
}).ParseFS(templateFS, "templates/*.html"))

// safeCSS only lets validated hex colors through unescaped.
func safeCSS(s string) template.CSS {
	if !hexColor.MatchString(s) {
		return template.CSS("transparent")
	}
	return template.CSS(s)
}

type gridPage struct {
	Title   string
	Pending string
	Items   []Item
}

type detailPage struct {
	Title   string
	Pending string
	Item    *Item
}

func RenderGrid(w io.Writer, items []Item) error {
	return pages.ExecuteTemplate(w, "grid", gridPage{Title: "My Gallery", Pending: pendingDescription, Items: items})
}

func RenderDetail(w io.Writer, item *Item) error {
	return pages.ExecuteTemplate(w, "detail", detailPage{Title: item.FileName, Pending: pendingDescription, Item: item})
}

type loginPage struct {
	Title string
	Error string
}

func RenderLogin(w io.Writer, errMsg string) error {
	return pages.ExecuteTemplate(w, "login", loginPage{Title: "Sign in", Error: errMsg})
}
