// Package assets embeds the raw sources of the map page.
package assets

import _ "embed"

// Page sources, rendered by internal/site.
var (
	//go:embed index.html.tpl
	IndexTemplate string

	//go:embed style.css
	Style string

	//go:embed script.js
	Script string

	//go:embed favicon.svg
	Favicon string
)
