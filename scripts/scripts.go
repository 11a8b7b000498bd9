// Package scripts embeds the example fact scripts written by gofacts init.
package scripts

import "embed"

// FS holds every *.risor example.
//
//go:embed *.risor
var FS embed.FS

// Default is the example written as the project's first script.
const Default = "http_routes.risor"
