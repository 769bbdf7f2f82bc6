// Package lang is a registry of per-language source analyzers used for SBOM
// generation: language detection, import extraction, standard-library
// classification, and mapping of import names to package-ecosystem
// identities. Everything here is pure and deterministic; given the same
// content and filename, every plugin returns identical results on every call.
package lang

import (
	"path/filepath"
	"regexp"
	"strings"
)

// DetectedPackage identifies a third-party package referenced by source
// code. Version starts empty and is filled later by dependency resolution.
type DetectedPackage struct {
	Name      string
	Version   string
	Ecosystem string
	PURL      string
}

// Plugin analyzes source files of one language.
type Plugin interface {
	// Language is the plugin's canonical language name.
	Language() string
	// Detect scores how confident the plugin is that the file is written
	// in its language, 0..100.
	Detect(filename, content string) int
	// ExtractImports returns the module names imported by the file,
	// deduplicated, in first-occurrence order.
	ExtractImports(content string) []string
	// IsStdlib reports whether the module ships with the language itself.
	IsStdlib(module string) bool
	// MapPackage maps an extracted module name to a package identity, or
	// nil when the module does not correspond to an installable package.
	MapPackage(module string) *DetectedPackage
}

// Registry holds every plugin in a fixed registration order.
type Registry struct {
	plugins []Plugin
}

// NewRegistry returns a registry with all built-in language plugins.
func NewRegistry() *Registry {
	return &Registry{plugins: []Plugin{
		&javascriptPlugin{},
		&pythonPlugin{},
		&goPlugin{},
		&javaPlugin{},
		&rustPlugin{},
		&rubyPlugin{},
		&phpPlugin{},
		&cPlugin{},
	}}
}

// Plugins returns every registered plugin in registration order.
func (r *Registry) Plugins() []Plugin {
	return r.plugins
}

// ByLanguage returns the plugin for a language name, or nil.
func (r *Registry) ByLanguage(language string) Plugin {
	for _, p := range r.plugins {
		if p.Language() == language {
			return p
		}
	}
	return nil
}

// DetectLanguage scores the file against every plugin and returns the best
// match with its score. Ties resolve to the earlier-registered plugin so
// results stay stable. Returns nil when no plugin scores above zero.
func (r *Registry) DetectLanguage(filename, content string) (Plugin, int) {
	var best Plugin
	bestScore := 0
	for _, p := range r.plugins {
		if score := p.Detect(filename, content); score > bestScore {
			best, bestScore = p, score
			if bestScore >= maxScore {
				break
			}
		}
	}
	return best, bestScore
}

const maxScore = 100

// scoreFile implements the shared detection heuristic: a fixed bonus for a
// matching file extension plus per-pattern weights, capped at 100 and
// short-circuiting once the cap is reached.
func scoreFile(filename, content string, extensions []string, extWeight int, patterns []scoredPattern) int {
	score := 0
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range extensions {
		if ext == e {
			score += extWeight
			break
		}
	}
	for _, p := range patterns {
		if score >= maxScore {
			return maxScore
		}
		if p.re.MatchString(content) {
			score += p.weight
		}
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

type scoredPattern struct {
	re     *regexp.Regexp
	weight int
}

// extractMatches runs re over the content and returns the given capture
// group of each match, deduplicated in first-occurrence order.
func extractMatches(content string, re *regexp.Regexp, group int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range re.FindAllStringSubmatch(content, -1) {
		name := m[group]
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// mergeOrdered concatenates lists keeping first-occurrence order and
// dropping duplicates across lists.
func mergeOrdered(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

func stringSet(items ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
