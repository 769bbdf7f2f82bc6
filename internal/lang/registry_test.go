// ABOUTME: Tests for language detection scoring and plugin determinism.
// ABOUTME: Repeated calls on identical input must return identical ordered results.
package lang

import (
	"strings"
	"testing"
)

const goSample = `package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra/v2/extra"
)

func main() {
	x := os.Args
	fmt.Println(x)
}
`

const pySample = `import os.path
import requests
from flask import Flask
from my_local_pkg.sub import thing

def main():
    if __name__ == "__main__":
        pass
`

const jsSample = `import express from 'express';
import debounce from 'lodash/debounce';
import { parse } from '@babel/core';
import fs from 'node:fs';
import helper from './helper';
const routes = require('express/lib/router');

export default function run() {
  return () => fs.readFile;
}
`

func TestDetectLanguage(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	cases := []struct {
		filename string
		content  string
		want     string
	}{
		{"main.go", goSample, "go"},
		{"app.py", pySample, "python"},
		{"index.ts", jsSample, "javascript"},
		{"util.c", "#include <stdio.h>\nint main(void) { return 0; }\n", "c"},
	}
	for _, tc := range cases {
		p, score := r.DetectLanguage(tc.filename, tc.content)
		if p == nil {
			t.Errorf("%s: no plugin matched", tc.filename)
			continue
		}
		if p.Language() != tc.want {
			t.Errorf("%s: detected %s (score %d), want %s", tc.filename, p.Language(), score, tc.want)
		}
		if score <= 0 || score > 100 {
			t.Errorf("%s: score %d out of range", tc.filename, score)
		}
	}
}

func TestDetectLanguageNoMatch(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if p, score := r.DetectLanguage("notes.txt", "just some prose"); p != nil {
		t.Errorf("detected %s (score %d) for prose, want nil", p.Language(), score)
	}
}

// Detection and extraction must be pure: repeated calls on identical input
// return identical results, including order.
func TestPluginsAreDeterministic(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	inputs := map[string]string{
		"main.go":  goSample,
		"app.py":   pySample,
		"index.js": jsSample,
		"lib.c":    "#include <boost/asio.hpp>\n#include <zlib.h>\n",
	}
	for filename, content := range inputs {
		p1, s1 := r.DetectLanguage(filename, content)
		for i := 0; i < 10; i++ {
			p2, s2 := r.DetectLanguage(filename, content)
			if p1 != p2 || s1 != s2 {
				t.Fatalf("%s: detection not stable: (%v,%d) vs (%v,%d)", filename, p1, s1, p2, s2)
			}
		}
		if p1 == nil {
			continue
		}
		first := p1.ExtractImports(content)
		for i := 0; i < 10; i++ {
			again := p1.ExtractImports(content)
			if len(again) != len(first) {
				t.Fatalf("%s: import count varies: %v vs %v", filename, first, again)
			}
			for i := range first {
				if first[i] != again[i] {
					t.Fatalf("%s: import order varies at %d: %v vs %v", filename, i, first, again)
				}
			}
		}
	}
}

func TestByLanguage(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if p := r.ByLanguage("rust"); p == nil || p.Language() != "rust" {
		t.Errorf("ByLanguage(rust) = %v", p)
	}
	if p := r.ByLanguage("cobol"); p != nil {
		t.Errorf("ByLanguage(cobol) = %v, want nil", p)
	}
}

func TestMergeOrdered(t *testing.T) {
	t.Parallel()

	got := mergeOrdered([]string{"b", "a"}, []string{"a", "c", "b"})
	want := "b,a,c"
	if strings.Join(got, ",") != want {
		t.Errorf("mergeOrdered = %v, want %s", got, want)
	}
}
