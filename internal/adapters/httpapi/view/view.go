// Package view renders contract state as HTML. Rendering is pure: the same
// input always produces the same markup and nothing is read from the chain.
package view

import (
	"bytes"
	"embed"
	"html/template"
	"math/big"

	"credpost/internal/core/post"
	"credpost/internal/core/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Absent marks a value that could not be read.
const Absent = "—"

var templates = template.Must(
	template.New("view").Funcs(template.FuncMap{"num": num}).ParseFS(templateFS, "templates/*.html"),
)

func num(v *big.Int) string {
	if v == nil {
		return Absent
	}
	return v.String()
}

// PageData is everything the full page shows.
type PageData struct {
	Snapshot session.Snapshot
	Notice   string
	Level    string // "info" or "error"

	PostsHTML template.HTML
}

// RenderPost renders a single post card. Finalized posts get the finalized
// marker and never the vote controls.
func RenderPost(p *post.Post) (template.HTML, error) {
	return execute("post-card", p)
}

// RenderPosts rebuilds the whole list from scratch.
func RenderPosts(posts []*post.Post) (template.HTML, error) {
	return execute("posts", posts)
}

func RenderPage(data PageData) (template.HTML, error) {
	list, err := RenderPosts(data.Snapshot.Posts)
	if err != nil {
		return "", err
	}
	data.PostsHTML = list
	return execute("page", data)
}

func execute(name string, data interface{}) (template.HTML, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
