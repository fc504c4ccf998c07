// Package appfs embeds assets shipped with the binary.
package appfs

import (
	"embed"
	"io/fs"
)

//go:embed migrations
var embedded embed.FS

var FS fs.FS = embedded
