package templates

import "embed"

// PagesFS contains the HTML pages served by the web routes.
// layout.html wraps every other page.
//
//go:embed pages/*.html
var PagesFS embed.FS

// EmailFS contains the HTML bodies of outgoing mail.
//
//go:embed email/*.html
var EmailFS embed.FS
