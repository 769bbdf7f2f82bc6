// ABOUTME: Rust analyzer: use/extern crate extraction and crates.io mapping.
// ABOUTME: Crate identifiers use underscores in source but hyphens in the registry.
package lang

import (
	"regexp"
	"strings"

	"github.com/package-url/packageurl-go"
)

type rustPlugin struct{}

var (
	rustExtensions = []string{".rs"}

	rustPatterns = []scoredPattern{
		{regexp.MustCompile(`(?m)^\s*fn\s+\w+`), 20},
		{regexp.MustCompile(`(?m)^\s*use\s+[\w:]+`), 20},
		{regexp.MustCompile(`\blet\s+(mut\s+)?\w+`), 15},
		{regexp.MustCompile(`\b(impl|trait|pub\s+fn|match)\b`), 15},
		{regexp.MustCompile(`#\[\w+`), 10},
	}

	rustUseRe    = regexp.MustCompile(`(?m)^\s*(?:pub\s+)?use\s+([A-Za-z_]\w*)`)
	rustExternRe = regexp.MustCompile(`(?m)^\s*extern\s+crate\s+([A-Za-z_]\w*)`)

	rustBuiltin = stringSet("std", "core", "alloc", "proc_macro", "test",
		"crate", "self", "super")
)

func (p *rustPlugin) Language() string { return "rust" }

func (p *rustPlugin) Detect(filename, content string) int {
	return scoreFile(filename, content, rustExtensions, 40, rustPatterns)
}

func (p *rustPlugin) ExtractImports(content string) []string {
	raw := mergeOrdered(
		extractMatches(content, rustUseRe, 1),
		extractMatches(content, rustExternRe, 1),
	)
	out := raw[:0]
	for _, name := range raw {
		if _, ok := rustBuiltin[name]; ok {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (p *rustPlugin) IsStdlib(module string) bool {
	_, ok := rustBuiltin[module]
	return ok
}

// MapPackage maps a crate root to its crates.io name; crate identifiers use
// underscores in source but hyphens in the registry.
func (p *rustPlugin) MapPackage(module string) *DetectedPackage {
	if p.IsStdlib(module) {
		return nil
	}
	name := strings.ReplaceAll(module, "_", "-")
	purl := packageurl.NewPackageURL(packageurl.TypeCargo, "", name, "", nil, "")
	return &DetectedPackage{Name: name, Ecosystem: "cargo", PURL: purl.ToString()}
}
