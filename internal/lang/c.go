// ABOUTME: C/C++ analyzer: #include extraction and header-to-library inference for Conan.
// ABOUTME: Unknown headers yield no package rather than a guess.
package lang

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/package-url/packageurl-go"
)

// cPlugin covers C and C++; they share include syntax and the same
// header-to-library mapping problem.
type cPlugin struct{}

var (
	cExtensions = []string{".c", ".h", ".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx"}

	cPatterns = []scoredPattern{
		{regexp.MustCompile(`(?m)^\s*#include\s*[<"]`), 25},
		{regexp.MustCompile(`\bint\s+main\s*\(`), 20},
		{regexp.MustCompile(`\b(std::|template\s*<|namespace\s+\w+)`), 15},
		{regexp.MustCompile(`(?m)^\s*#(define|ifndef|ifdef|pragma)\b`), 10},
		{regexp.MustCompile(`\b(struct|typedef|void|size_t)\b`), 10},
	}

	cIncludeRe = regexp.MustCompile(`(?m)^\s*#include\s*[<"]([^>"]+)[>"]`)

	cStdHeaders = stringSet(
		"assert.h", "ctype.h", "errno.h", "float.h", "inttypes.h", "limits.h",
		"locale.h", "math.h", "setjmp.h", "signal.h", "stdarg.h", "stdbool.h",
		"stddef.h", "stdint.h", "stdio.h", "stdlib.h", "string.h", "time.h",
		"unistd.h", "wchar.h", "pthread.h", "fcntl.h", "sys/types.h",
		"sys/stat.h", "sys/socket.h",
		"algorithm", "array", "atomic", "chrono", "cstddef", "cstdint",
		"cstdio", "cstdlib", "cstring", "deque", "exception", "filesystem",
		"fstream", "functional", "iomanip", "iostream", "iterator", "list",
		"map", "memory", "mutex", "numeric", "optional", "queue", "random",
		"regex", "set", "sstream", "stdexcept", "string", "string_view",
		"thread", "tuple", "type_traits", "unordered_map", "unordered_set",
		"utility", "variant", "vector",
	)

	// Well-known third-party headers and the library each one implies.
	cHeaderLibraries = map[string]string{
		"zlib.h":        "zlib",
		"curl/curl.h":   "libcurl",
		"openssl/":      "openssl",
		"sqlite3.h":     "sqlite3",
		"png.h":         "libpng",
		"jpeglib.h":     "libjpeg",
		"pcre.h":        "pcre",
		"pcre2.h":       "pcre2",
		"expat.h":       "expat",
		"libxml/":       "libxml2",
		"boost/":        "boost",
		"gtest/":        "gtest",
		"SDL2/":         "sdl2",
		"lua.h":         "lua",
		"uv.h":          "libuv",
		"event2/":       "libevent",
		"zmq.h":         "zeromq",
		"yaml.h":        "libyaml",
		"archive.h":     "libarchive",
		"sodium.h":      "libsodium",
		"gmp.h":         "gmp",
		"mysql/":        "libmysqlclient",
		"postgresql/":   "libpq",
		"libpq-fe.h":    "libpq",
		"fmt/":          "fmt",
		"spdlog/":       "spdlog",
		"nlohmann/":     "nlohmann-json",
		"rapidjson/":    "rapidjson",
		"grpc/":         "grpc",
		"protobuf/":     "protobuf",
		"opencv2/":      "opencv",
		"Eigen/":        "eigen",
		"catch2/":       "catch2",
		"benchmark/":    "benchmark",
		"tbb/":          "tbb",
		"uuid/uuid.h":   "libuuid",
		"magic.h":       "libmagic",
		"git2.h":        "libgit2",
		"git2/":         "libgit2",
		"hiredis/":      "hiredis",
		"librdkafka/":   "librdkafka",
		"snappy.h":      "snappy",
		"lz4.h":         "lz4",
		"zstd.h":        "zstd",
		"brotli/":       "brotli",
		"jansson.h":     "jansson",
		"cjson/":        "cjson",
		"mbedtls/":      "mbedtls",
		"gnutls/":       "gnutls",
		"krb5.h":        "krb5",
		"ldap.h":        "openldap",
		"sasl/":         "cyrus-sasl",
		"ncurses.h":     "ncurses",
		"readline/":     "readline",
		"ffi.h":         "libffi",
		"ssh2/":         "libssh2",
		"libssh2.h":     "libssh2",
		"websocketpp/":  "websocketpp",
		"mosquitto.h":   "mosquitto",
		"paho-mqtt3a.h": "paho-mqtt-c",
	}
)

// cHeaderPrefixes returns the directory-style keys of cHeaderLibraries in a
// fixed order so prefix matching stays deterministic.
var cHeaderPrefixes = sync.OnceValue(func() []string {
	var prefixes []string
	for key := range cHeaderLibraries {
		if strings.HasSuffix(key, "/") {
			prefixes = append(prefixes, key)
		}
	}
	sort.Strings(prefixes)
	return prefixes
})

func (p *cPlugin) Language() string { return "c" }

func (p *cPlugin) Detect(filename, content string) int {
	return scoreFile(filename, content, cExtensions, 40, cPatterns)
}

func (p *cPlugin) ExtractImports(content string) []string {
	return extractMatches(content, cIncludeRe, 1)
}

func (p *cPlugin) IsStdlib(module string) bool {
	_, ok := cStdHeaders[module]
	return ok
}

// MapPackage infers the providing library from an include path: exact header
// matches first, then directory-prefix matches. Headers with no known
// library mapping yield nil rather than a guessed package.
func (p *cPlugin) MapPackage(module string) *DetectedPackage {
	if p.IsStdlib(module) {
		return nil
	}
	lib, ok := cHeaderLibraries[module]
	if !ok {
		for _, prefix := range cHeaderPrefixes() {
			if strings.HasPrefix(module, prefix) {
				lib, ok = cHeaderLibraries[prefix], true
				break
			}
		}
	}
	if !ok {
		return nil
	}

	purl := packageurl.NewPackageURL(packageurl.TypeConan, "", lib, "", nil, "")
	return &DetectedPackage{Name: lib, Ecosystem: "conan", PURL: purl.ToString()}
}
