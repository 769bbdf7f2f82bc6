// ABOUTME: Java analyzer: import statements collapsed to package prefixes, Maven mapping.
// ABOUTME: Class-name segments are dropped; the first two segments form the group id.
package lang

import (
	"regexp"
	"strings"

	"github.com/package-url/packageurl-go"
)

type javaPlugin struct{}

var (
	javaExtensions = []string{".java"}

	javaPatterns = []scoredPattern{
		{regexp.MustCompile(`(?m)^package\s+[\w.]+;`), 25},
		{regexp.MustCompile(`\b(public|private|protected)\s+(static\s+)?(final\s+)?(class|interface|enum|void|\w+(<[^>]*>)?)\s`), 20},
		{regexp.MustCompile(`(?m)^import\s+[\w.]+;`), 20},
		{regexp.MustCompile(`@\w+`), 10},
		{regexp.MustCompile(`\bSystem\.out\.print`), 10},
	}

	javaImportRe = regexp.MustCompile(`(?m)^import\s+(?:static\s+)?([\w.]+)\s*;`)
)

func (p *javaPlugin) Language() string { return "java" }

func (p *javaPlugin) Detect(filename, content string) int {
	return scoreFile(filename, content, javaExtensions, 40, javaPatterns)
}

// ExtractImports collapses fully qualified class imports to their package
// prefix, dropping the trailing class (and wildcard) segments.
func (p *javaPlugin) ExtractImports(content string) []string {
	raw := extractMatches(content, javaImportRe, 1)
	var out []string
	seen := make(map[string]struct{})
	for _, name := range raw {
		pkg := javaPackagePrefix(name)
		if pkg == "" {
			continue
		}
		if _, ok := seen[pkg]; ok {
			continue
		}
		seen[pkg] = struct{}{}
		out = append(out, pkg)
	}
	return out
}

// javaPackagePrefix keeps at most the first three dotted segments, dropping
// any segment that starts with an upper-case letter (class names).
func javaPackagePrefix(fqn string) string {
	parts := strings.Split(fqn, ".")
	var kept []string
	for _, seg := range parts {
		if seg == "" || seg == "*" || (seg[0] >= 'A' && seg[0] <= 'Z') {
			break
		}
		kept = append(kept, seg)
		if len(kept) == 3 {
			break
		}
	}
	return strings.Join(kept, ".")
}

func (p *javaPlugin) IsStdlib(module string) bool {
	return strings.HasPrefix(module, "java.") ||
		strings.HasPrefix(module, "javax.") ||
		strings.HasPrefix(module, "jdk.") ||
		module == "java" || module == "javax" || module == "jdk"
}

// MapPackage treats the first two segments as the group id and the third,
// when present, as the artifact id.
func (p *javaPlugin) MapPackage(module string) *DetectedPackage {
	if p.IsStdlib(module) {
		return nil
	}
	parts := strings.Split(module, ".")
	if len(parts) < 2 {
		return nil
	}
	group := strings.Join(parts[:2], ".")
	artifact := parts[len(parts)-1]
	if len(parts) == 2 {
		artifact = parts[1]
	}

	purl := packageurl.NewPackageURL(packageurl.TypeMaven, group, artifact, "", nil, "")
	return &DetectedPackage{
		Name:      group + ":" + artifact,
		Ecosystem: "maven",
		PURL:      purl.ToString(),
	}
}
