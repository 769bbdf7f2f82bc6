// ABOUTME: Ruby analyzer: require extraction to gem roots and RubyGems mapping.
// ABOUTME: require_relative loads project files and is ignored.
package lang

import (
	"regexp"
	"strings"

	"github.com/package-url/packageurl-go"
)

type rubyPlugin struct{}

var (
	rubyExtensions = []string{".rb", ".rake", ".gemspec"}

	rubyPatterns = []scoredPattern{
		{regexp.MustCompile(`(?m)^\s*def\s+\w+`), 20},
		{regexp.MustCompile(`(?m)^\s*require\s+['"]`), 20},
		{regexp.MustCompile(`(?m)^\s*(end|module\s+\w+|class\s+\w+)\s*$`), 15},
		{regexp.MustCompile(`\bdo\s*\|`), 15},
		{regexp.MustCompile(`\bputs\b|\battr_(reader|writer|accessor)\b`), 10},
	}

	rubyRequireRe = regexp.MustCompile(`(?m)^\s*require\s+['"]([^'"]+)['"]`)

	rubyStdlib = stringSet(
		"base64", "benchmark", "bigdecimal", "cgi", "csv", "date", "delegate",
		"digest", "erb", "fileutils", "find", "forwardable", "io", "ipaddr",
		"json", "logger", "net", "observer", "open-uri", "openssl", "optparse",
		"ostruct", "pathname", "pp", "psych", "rbconfig", "resolv", "securerandom",
		"set", "shellwords", "singleton", "socket", "stringio", "strscan",
		"tempfile", "time", "timeout", "tmpdir", "uri", "yaml", "zlib",
	)
)

func (p *rubyPlugin) Language() string { return "ruby" }

func (p *rubyPlugin) Detect(filename, content string) int {
	return scoreFile(filename, content, rubyExtensions, 40, rubyPatterns)
}

// ExtractImports collects require targets; require_relative loads project
// files and is ignored.
func (p *rubyPlugin) ExtractImports(content string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, name := range extractMatches(content, rubyRequireRe, 1) {
		gem, _, _ := strings.Cut(name, "/")
		if _, ok := seen[gem]; ok {
			continue
		}
		seen[gem] = struct{}{}
		out = append(out, gem)
	}
	return out
}

func (p *rubyPlugin) IsStdlib(module string) bool {
	gem, _, _ := strings.Cut(module, "/")
	_, ok := rubyStdlib[gem]
	return ok
}

func (p *rubyPlugin) MapPackage(module string) *DetectedPackage {
	if p.IsStdlib(module) {
		return nil
	}
	gem, _, _ := strings.Cut(module, "/")
	purl := packageurl.NewPackageURL(packageurl.TypeGem, "", gem, "", nil, "")
	return &DetectedPackage{Name: gem, Ecosystem: "gem", PURL: purl.ToString()}
}
