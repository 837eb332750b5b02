// Package schemas embeds the JSON schemas of the files newscaster reads.
package schemas

import _ "embed"

// Config is the JSON schema of the optional config file.
//
//go:embed config.schema.json
var Config string
