package webchat

import "embed"

// TemplateFS contains the embedded HTML templates used for exporting a transcript into a standalone
// document.
//
//go:embed templates/*
var TemplateFS embed.FS
