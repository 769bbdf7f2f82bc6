// ABOUTME: PHP analyzer: use statements collapsed to vendor/package pairs, Composer mapping.
// ABOUTME: Single-segment names are core classes, never installable packages.
package lang

import (
	"regexp"
	"strings"

	"github.com/package-url/packageurl-go"
)

type phpPlugin struct{}

var (
	phpExtensions = []string{".php", ".phtml"}

	phpPatterns = []scoredPattern{
		{regexp.MustCompile(`<\?php`), 30},
		{regexp.MustCompile(`(?m)^\s*namespace\s+[\w\\]+;`), 20},
		{regexp.MustCompile(`(?m)^\s*use\s+[\w\\]+`), 15},
		{regexp.MustCompile(`\$\w+\s*=`), 15},
		{regexp.MustCompile(`\bfunction\s+\w+\s*\(`), 10},
	}

	phpUseRe = regexp.MustCompile(`(?m)^\s*use\s+([\w\\]+)`)

	// Core classes and top-level namespaces that ship with PHP itself.
	phpBuiltin = stringSet(
		"ArrayAccess", "ArrayObject", "Closure", "Countable", "DateInterval",
		"DateTime", "DateTimeImmutable", "DateTimeZone", "DirectoryIterator",
		"Exception", "Generator", "Iterator", "IteratorAggregate", "JsonSerializable",
		"PDO", "PDOStatement", "ReflectionClass", "RuntimeException", "SplFileInfo",
		"SplQueue", "SplStack", "Stringable", "Throwable", "Traversable",
	)
)

func (p *phpPlugin) Language() string { return "php" }

func (p *phpPlugin) Detect(filename, content string) int {
	return scoreFile(filename, content, phpExtensions, 40, phpPatterns)
}

// ExtractImports keeps the first two namespace segments, which is the
// Composer vendor/package convention.
func (p *phpPlugin) ExtractImports(content string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, name := range extractMatches(content, phpUseRe, 1) {
		parts := strings.Split(strings.Trim(name, `\`), `\`)
		if len(parts) == 0 || parts[0] == "" {
			continue
		}
		key := parts[0]
		if len(parts) > 1 {
			key = parts[0] + `\` + parts[1]
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// IsStdlib reports single-segment names and known core classes as built in;
// installable Composer packages always carry a vendor namespace.
func (p *phpPlugin) IsStdlib(module string) bool {
	parts := strings.Split(strings.Trim(module, `\`), `\`)
	if len(parts) < 2 {
		_, ok := phpBuiltin[parts[0]]
		return ok || len(parts) == 1
	}
	return false
}

func (p *phpPlugin) MapPackage(module string) *DetectedPackage {
	if p.IsStdlib(module) {
		return nil
	}
	parts := strings.Split(strings.Trim(module, `\`), `\`)
	vendor := strings.ToLower(parts[0])
	name := strings.ToLower(parts[1])

	purl := packageurl.NewPackageURL(packageurl.TypeComposer, vendor, name, "", nil, "")
	return &DetectedPackage{
		Name:      vendor + "/" + name,
		Ecosystem: "composer",
		PURL:      purl.ToString(),
	}
}
