// ABOUTME: Python analyzer: import/from extraction to top-level modules, PyPI name mapping.
// ABOUTME: Package names are normalized to lowercase with hyphen-collapsed separators.
package lang

import (
	"regexp"
	"strings"

	"github.com/package-url/packageurl-go"
)

type pythonPlugin struct{}

var (
	pyExtensions = []string{".py", ".pyi"}

	pyPatterns = []scoredPattern{
		{regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(`), 20},
		{regexp.MustCompile(`(?m)^\s*from\s+[\w.]+\s+import\b`), 20},
		{regexp.MustCompile(`(?m)^\s*import\s+[\w.]+`), 15},
		{regexp.MustCompile(`(?m)^\s*class\s+\w+.*:`), 15},
		{regexp.MustCompile(`\bself\b`), 10},
		{regexp.MustCompile(`(?m)^\s*if\s+__name__\s*==`), 10},
	}

	pyImportRe = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+)`)
	pyFromRe   = regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import\b`)

	pyStdlib = stringSet(
		"abc", "argparse", "asyncio", "base64", "collections", "concurrent",
		"contextlib", "copy", "csv", "dataclasses", "datetime", "decimal",
		"enum", "functools", "glob", "gzip", "hashlib", "heapq", "hmac",
		"html", "http", "importlib", "inspect", "io", "itertools", "json",
		"logging", "math", "multiprocessing", "os", "pathlib", "pickle",
		"queue", "random", "re", "secrets", "shutil", "signal", "socket",
		"sqlite3", "ssl", "string", "struct", "subprocess", "sys",
		"tempfile", "threading", "time", "traceback", "types", "typing",
		"unittest", "urllib", "uuid", "warnings", "xml", "zipfile", "zlib",
	)
)

func (p *pythonPlugin) Language() string { return "python" }

func (p *pythonPlugin) Detect(filename, content string) int {
	return scoreFile(filename, content, pyExtensions, 40, pyPatterns)
}

// ExtractImports returns top-level module names; "os.path" counts as "os".
func (p *pythonPlugin) ExtractImports(content string) []string {
	raw := mergeOrdered(
		extractMatches(content, pyImportRe, 1),
		extractMatches(content, pyFromRe, 1),
	)
	var out []string
	seen := make(map[string]struct{})
	for _, name := range raw {
		top, _, _ := strings.Cut(name, ".")
		if _, ok := seen[top]; ok {
			continue
		}
		seen[top] = struct{}{}
		out = append(out, top)
	}
	return out
}

func (p *pythonPlugin) IsStdlib(module string) bool {
	top, _, _ := strings.Cut(module, ".")
	_, ok := pyStdlib[top]
	return ok
}

// MapPackage normalizes per PyPI naming conventions: lowercase, with runs
// of underscores, hyphens, and dots collapsed to a single hyphen.
func (p *pythonPlugin) MapPackage(module string) *DetectedPackage {
	if p.IsStdlib(module) {
		return nil
	}
	top, _, _ := strings.Cut(module, ".")
	name := pyNormalizeRe.ReplaceAllString(strings.ToLower(top), "-")
	purl := packageurl.NewPackageURL(packageurl.TypePyPi, "", name, "", nil, "")
	return &DetectedPackage{Name: name, Ecosystem: "pypi", PURL: purl.ToString()}
}

var pyNormalizeRe = regexp.MustCompile(`[-_.]+`)
