package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

var NowFunc = time.Now // mockable

// Now returns the current UTC time from NowFunc.
func Now() time.Time {
	return NowFunc().UTC()
}

// CleanString trims `s`, collapses inner runs of whitespace to one space and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// OnlyDigits drops every non-digit rune from `s`.
func OnlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// Getwd finds the project root (the closest parent holding a go.mod).
// go test runs inside the package dir, so the cwd cannot be used as is.
// Deployed binaries have no go.mod around them: the cwd is returned then.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
