// ABOUTME: JavaScript/TypeScript analyzer: ESM and require imports, node builtins, npm mapping.
// ABOUTME: Scoped packages keep their scope; deep imports collapse to the package root.
package lang

import (
	"regexp"
	"strings"

	"github.com/package-url/packageurl-go"
)

// javascriptPlugin covers both JavaScript and TypeScript sources; they share
// import syntax and the npm ecosystem.
type javascriptPlugin struct{}

var (
	jsExtensions = []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", ".mts", ".cts"}

	jsPatterns = []scoredPattern{
		{regexp.MustCompile(`\brequire\s*\(\s*['"]`), 20},
		{regexp.MustCompile(`\bimport\s+.+\s+from\s+['"]`), 20},
		{regexp.MustCompile(`\bexport\s+(default|const|function|class)\b`), 15},
		{regexp.MustCompile(`\bmodule\.exports\b`), 15},
		{regexp.MustCompile(`\b(const|let)\s+\w+\s*=`), 10},
		{regexp.MustCompile(`=>`), 5},
	}

	jsImportRe  = regexp.MustCompile(`\bimport\s+(?:[\w*{}$,\s]+\s+from\s+)?['"]([^'"]+)['"]`)
	jsRequireRe = regexp.MustCompile(`\brequire\s*\(\s*['"]([^'"]+)['"]\s*\)`)

	nodeBuiltins = stringSet(
		"assert", "async_hooks", "buffer", "child_process", "cluster",
		"console", "constants", "crypto", "dgram", "dns", "domain",
		"events", "fs", "http", "http2", "https", "inspector", "module",
		"net", "os", "path", "perf_hooks", "process", "punycode",
		"querystring", "readline", "repl", "stream", "string_decoder",
		"timers", "tls", "trace_events", "tty", "url", "util", "v8",
		"vm", "wasi", "worker_threads", "zlib",
	)
)

func (p *javascriptPlugin) Language() string { return "javascript" }

func (p *javascriptPlugin) Detect(filename, content string) int {
	return scoreFile(filename, content, jsExtensions, 40, jsPatterns)
}

func (p *javascriptPlugin) ExtractImports(content string) []string {
	imports := mergeOrdered(
		extractMatches(content, jsImportRe, 1),
		extractMatches(content, jsRequireRe, 1),
	)
	out := imports[:0]
	for _, name := range imports {
		// Relative and absolute specifiers are project files, not packages.
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "/") {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (p *javascriptPlugin) IsStdlib(module string) bool {
	name := strings.TrimPrefix(module, "node:")
	name, _, _ = strings.Cut(name, "/")
	_, ok := nodeBuiltins[name]
	return ok
}

// MapPackage normalizes an import specifier to an npm package. Scoped
// packages keep scope plus name; unscoped deep imports like
// "lodash/debounce" collapse to the package root.
func (p *javascriptPlugin) MapPackage(module string) *DetectedPackage {
	if p.IsStdlib(module) {
		return nil
	}
	var namespace, name string
	parts := strings.Split(module, "/")
	if strings.HasPrefix(module, "@") {
		if len(parts) < 2 {
			return nil
		}
		namespace, name = parts[0], parts[1]
	} else {
		name = parts[0]
	}

	full := name
	if namespace != "" {
		full = namespace + "/" + name
	}
	purl := packageurl.NewPackageURL(packageurl.TypeNPM, namespace, name, "", nil, "")
	return &DetectedPackage{Name: full, Ecosystem: "npm", PURL: purl.ToString()}
}
