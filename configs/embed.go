// Package configs provides the embedded configuration template written
// by 'notedex init'. Embedding at build time keeps the template
// available in every distribution channel.
package configs

import _ "embed"

// ConfigTemplate is the annotated starter config written to
// ~/.notedex/config.yaml.
//
//go:embed config.example.yaml
var ConfigTemplate string
