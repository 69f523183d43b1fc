package portal

import (
	"embed"
	"html/template"
)

//go:embed html/*.html
var htmlFiles embed.FS

var (
	verifyTmpl   = mustParse("html/verify.html")
	outcomeTmpl  = mustParse("html/outcome.html")
	fallbackTmpl = mustParse("html/fallback.html")
)

func mustParse(name string) *template.Template {
	return template.Must(template.ParseFS(htmlFiles, name))
}

type verifyData struct {
	DiscordID          string
	Username           string
	Target             string
	ContinueURL        string
	CopiedLabel        string
	FallbackLabel      string
	RequireCopySuccess bool
	SignedIn           bool
}

type outcomeData struct {
	Heading  string
	Message  string
	Home     string
	LinkText string
}

type fallbackData struct {
	LoginURL string
}
