// ABOUTME: Go analyzer: import block/single extraction and module-root mapping.
// ABOUTME: Paths without a dot in the first segment are standard library.
package lang

import (
	"regexp"
	"strings"

	"github.com/package-url/packageurl-go"
)

type goPlugin struct{}

var (
	goExtensions = []string{".go"}

	goPatterns = []scoredPattern{
		{regexp.MustCompile(`(?m)^package\s+\w+`), 25},
		{regexp.MustCompile(`(?m)^func\s+(\(\w+\s+\*?\w+\)\s+)?\w+\s*\(`), 20},
		{regexp.MustCompile(`:=`), 15},
		{regexp.MustCompile(`(?m)^import\s*(\(|")`), 15},
		{regexp.MustCompile(`\bchan\b|\bgo\s+func\b|\bdefer\b`), 10},
	}

	goImportBlockRe  = regexp.MustCompile(`(?s)import\s*\((.*?)\)`)
	goImportSingleRe = regexp.MustCompile(`(?m)^import\s+(?:\w+\s+|\.\s+|_\s+)?"([^"]+)"`)
	goImportLineRe   = regexp.MustCompile(`"([^"]+)"`)
)

func (p *goPlugin) Language() string { return "go" }

func (p *goPlugin) Detect(filename, content string) int {
	return scoreFile(filename, content, goExtensions, 40, goPatterns)
}

func (p *goPlugin) ExtractImports(content string) []string {
	var raw []string
	for _, block := range goImportBlockRe.FindAllStringSubmatch(content, -1) {
		for _, m := range goImportLineRe.FindAllStringSubmatch(block[1], -1) {
			raw = append(raw, m[1])
		}
	}
	for _, m := range goImportSingleRe.FindAllStringSubmatch(content, -1) {
		raw = append(raw, m[1])
	}
	return mergeOrdered(raw)
}

// IsStdlib treats any import path without a dot in its first segment as
// standard library, mirroring the toolchain's own rule.
func (p *goPlugin) IsStdlib(module string) bool {
	first, _, _ := strings.Cut(module, "/")
	return !strings.Contains(first, ".")
}

// MapPackage collapses a deep import path to its module root: for the usual
// host/owner/repo layout that is the first three segments.
func (p *goPlugin) MapPackage(module string) *DetectedPackage {
	if p.IsStdlib(module) {
		return nil
	}
	parts := strings.Split(module, "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	name := parts[len(parts)-1]
	namespace := strings.Join(parts[:len(parts)-1], "/")

	purl := packageurl.NewPackageURL(packageurl.TypeGolang, namespace, name, "", nil, "")
	return &DetectedPackage{
		Name:      strings.Join(parts, "/"),
		Ecosystem: "golang",
		PURL:      purl.ToString(),
	}
}
