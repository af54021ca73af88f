// Package web holds the browser client served at the site root.
package web

import "embed"

// Assets contains the public/ directory.
//
//go:embed public
var Assets embed.FS
