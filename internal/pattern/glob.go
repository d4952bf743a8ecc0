package pattern

import (
	"regexp"

	"github.com/gobwas/glob"
)

// compiledRegex wraps a pre-compiled *regexp.Regexp so the Condition struct
// does not need to expose the stdlib type directly.
type compiledRegex struct {
	re     *regexp.Regexp
	source string
}

func compileRegex(pattern string) (compiledRegex, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return compiledRegex{}, err
	}
	return compiledRegex{re: re, source: pattern}, nil
}

// compiledGlob wraps a gobwas/glob.Glob, which -- unlike path/filepath.Match
// -- supports "**" matching across path separators, as the spec's shell-glob
// contract requires.
type compiledGlob struct {
	g      glob.Glob
	source string
}

func compileGlob(pattern string) (compiledGlob, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return compiledGlob{}, err
	}
	return compiledGlob{g: g, source: pattern}, nil
}
