// ABOUTME: Per-plugin tests: import extraction, stdlib classification, package mapping.
// ABOUTME: One section per language; fixtures are shared with the registry tests.
package lang

import (
	"strings"
	"testing"
)

func mustPlugin(t *testing.T, language string) Plugin {
	t.Helper()
	p := NewRegistry().ByLanguage(language)
	if p == nil {
		t.Fatalf("no plugin registered for %s", language)
	}
	return p
}

func assertImports(t *testing.T, got, want []string) {
	t.Helper()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("imports = %v, want %v", got, want)
	}
}

// ── JavaScript ──────────────────────────────────────────────────────────

func TestJavaScriptExtractImports(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "javascript")
	got := p.ExtractImports(jsSample)
	assertImports(t, got, []string{
		"express", "lodash/debounce", "@babel/core", "node:fs", "express/lib/router",
	})
}

func TestJavaScriptStdlib(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "javascript")
	for _, mod := range []string{"fs", "node:fs", "path", "fs/promises"} {
		if !p.IsStdlib(mod) {
			t.Errorf("IsStdlib(%q) = false, want true", mod)
		}
	}
	if p.IsStdlib("express") {
		t.Error("IsStdlib(express) = true")
	}
}

func TestJavaScriptMapPackage(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "javascript")

	pkg := p.MapPackage("lodash/debounce")
	if pkg == nil || pkg.Name != "lodash" || pkg.Ecosystem != "npm" {
		t.Fatalf("MapPackage(lodash/debounce) = %+v", pkg)
	}
	if pkg.PURL != "pkg:npm/lodash" {
		t.Errorf("PURL = %q", pkg.PURL)
	}

	scoped := p.MapPackage("@babel/core/lib/parse")
	if scoped == nil || scoped.Name != "@babel/core" {
		t.Fatalf("MapPackage(@babel/core/lib/parse) = %+v", scoped)
	}
	if !strings.HasPrefix(scoped.PURL, "pkg:npm/") || !strings.Contains(scoped.PURL, "babel/core") {
		t.Errorf("PURL = %q", scoped.PURL)
	}

	if got := p.MapPackage("node:fs"); got != nil {
		t.Errorf("MapPackage(node:fs) = %+v, want nil", got)
	}
}

// ── Python ──────────────────────────────────────────────────────────────

func TestPythonExtractImports(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "python")
	got := p.ExtractImports(pySample)
	assertImports(t, got, []string{"os", "requests", "flask", "my_local_pkg"})
}

func TestPythonMapPackage(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "python")

	if got := p.MapPackage("os"); got != nil {
		t.Errorf("MapPackage(os) = %+v, want nil", got)
	}

	pkg := p.MapPackage("Flask_RESTful")
	if pkg == nil || pkg.Name != "flask-restful" || pkg.Ecosystem != "pypi" {
		t.Fatalf("MapPackage(Flask_RESTful) = %+v, want normalized pypi name", pkg)
	}
	if pkg.PURL != "pkg:pypi/flask-restful" {
		t.Errorf("PURL = %q", pkg.PURL)
	}
}

// ── Go ──────────────────────────────────────────────────────────────────

func TestGoExtractImports(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "go")
	got := p.ExtractImports(goSample)
	assertImports(t, got, []string{"fmt", "os", "github.com/spf13/cobra/v2/extra"})
}

func TestGoMapPackage(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "go")

	for _, mod := range []string{"fmt", "net/http", "encoding/json"} {
		if got := p.MapPackage(mod); got != nil {
			t.Errorf("MapPackage(%q) = %+v, want nil for stdlib", mod, got)
		}
	}

	pkg := p.MapPackage("github.com/spf13/cobra/v2/extra")
	if pkg == nil || pkg.Name != "github.com/spf13/cobra" {
		t.Fatalf("MapPackage deep path = %+v, want module root", pkg)
	}
	if pkg.Ecosystem != "golang" || pkg.PURL != "pkg:golang/github.com/spf13/cobra" {
		t.Errorf("pkg = %+v", pkg)
	}
}

// ── Java ────────────────────────────────────────────────────────────────

func TestJavaExtractImports(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "java")
	src := `package com.example.app;

import java.util.List;
import static org.junit.jupiter.api.Assertions.assertEquals;
import com.fasterxml.jackson.databind.ObjectMapper;
import org.apache.commons.lang3.StringUtils;
`
	got := p.ExtractImports(src)
	assertImports(t, got, []string{
		"java.util", "org.junit.jupiter", "com.fasterxml.jackson", "org.apache.commons",
	})
}

func TestJavaMapPackage(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "java")

	if got := p.MapPackage("java.util"); got != nil {
		t.Errorf("MapPackage(java.util) = %+v, want nil", got)
	}

	pkg := p.MapPackage("com.fasterxml.jackson")
	if pkg == nil || pkg.Name != "com.fasterxml:jackson" || pkg.Ecosystem != "maven" {
		t.Fatalf("MapPackage(com.fasterxml.jackson) = %+v", pkg)
	}
	if pkg.PURL != "pkg:maven/com.fasterxml/jackson" {
		t.Errorf("PURL = %q", pkg.PURL)
	}
}

// ── Rust ────────────────────────────────────────────────────────────────

func TestRustExtractImports(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "rust")
	src := `use std::collections::HashMap;
use serde_json::Value;
pub use tokio::sync::Mutex;
use crate::config;
extern crate rand;

fn main() {}
`
	got := p.ExtractImports(src)
	assertImports(t, got, []string{"serde_json", "tokio", "rand"})
}

func TestRustMapPackage(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "rust")
	pkg := p.MapPackage("serde_json")
	if pkg == nil || pkg.Name != "serde-json" || pkg.PURL != "pkg:cargo/serde-json" {
		t.Fatalf("MapPackage(serde_json) = %+v", pkg)
	}
	if got := p.MapPackage("std"); got != nil {
		t.Errorf("MapPackage(std) = %+v, want nil", got)
	}
}

// ── Ruby ────────────────────────────────────────────────────────────────

func TestRubyExtractImports(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "ruby")
	src := `require 'json'
require 'nokogiri'
require 'active_support/core_ext'
require_relative 'helper'
`
	got := p.ExtractImports(src)
	assertImports(t, got, []string{"json", "nokogiri", "active_support"})
}

func TestRubyMapPackage(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "ruby")
	pkg := p.MapPackage("nokogiri")
	if pkg == nil || pkg.Name != "nokogiri" || pkg.PURL != "pkg:gem/nokogiri" {
		t.Fatalf("MapPackage(nokogiri) = %+v", pkg)
	}
	if got := p.MapPackage("json"); got != nil {
		t.Errorf("MapPackage(json) = %+v, want nil for stdlib", got)
	}
}

// ── PHP ─────────────────────────────────────────────────────────────────

func TestPHPExtractImports(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "php")
	src := `<?php
namespace App;

use Monolog\Logger;
use GuzzleHttp\Client;
use Exception;
`
	got := p.ExtractImports(src)
	assertImports(t, got, []string{`Monolog\Logger`, `GuzzleHttp\Client`, "Exception"})
}

func TestPHPMapPackage(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "php")

	if got := p.MapPackage("Exception"); got != nil {
		t.Errorf("MapPackage(Exception) = %+v, want nil for core class", got)
	}

	pkg := p.MapPackage(`Monolog\Logger`)
	if pkg == nil || pkg.Name != "monolog/logger" || pkg.Ecosystem != "composer" {
		t.Fatalf("MapPackage(Monolog\\Logger) = %+v", pkg)
	}
	if pkg.PURL != "pkg:composer/monolog/logger" {
		t.Errorf("PURL = %q", pkg.PURL)
	}
}

// ── C / C++ ─────────────────────────────────────────────────────────────

func TestCExtractImports(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "c")
	src := `#include <stdio.h>
#include <zlib.h>
#include "openssl/ssl.h"
#include <boost/asio.hpp>
#include <mylib/custom.h>
`
	got := p.ExtractImports(src)
	assertImports(t, got, []string{
		"stdio.h", "zlib.h", "openssl/ssl.h", "boost/asio.hpp", "mylib/custom.h",
	})
}

func TestCMapPackage(t *testing.T) {
	t.Parallel()

	p := mustPlugin(t, "c")

	if got := p.MapPackage("stdio.h"); got != nil {
		t.Errorf("MapPackage(stdio.h) = %+v, want nil", got)
	}

	cases := map[string]string{
		"zlib.h":         "zlib",
		"openssl/ssl.h":  "openssl",
		"boost/asio.hpp": "boost",
		"curl/curl.h":    "libcurl",
	}
	for header, lib := range cases {
		pkg := p.MapPackage(header)
		if pkg == nil || pkg.Name != lib || pkg.Ecosystem != "conan" {
			t.Errorf("MapPackage(%q) = %+v, want %s", header, pkg, lib)
		}
	}

	if got := p.MapPackage("mylib/custom.h"); got != nil {
		t.Errorf("MapPackage(mylib/custom.h) = %+v, want nil for unknown header", got)
	}
}
