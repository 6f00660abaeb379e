package preprocess

import "strings"

// Filters lists the characters replaced by a space before splitting.
const Filters = "!\"#$%&()*+,-./:;<=>?@[\\]^_`{|}~\t\n"

// Split is the separator tokens are split on after filtering.
const Split = " "

var filterReplacer = newFilterReplacer()

func newFilterReplacer() *strings.Replacer {
	pairs := make([]string, 0, 2*len(Filters))
	for _, r := range Filters {
		pairs = append(pairs, string(r), Split)
	}
	return strings.NewReplacer(pairs...)
}

// Tokenize lowercases text, blanks out filtered punctuation and splits on Split.
// Only Split separates tokens; other whitespace such as \r or U+00A0 stays inside a token.
// It is the only tokenization scheme used for both vocabulary building and encoding.
func Tokenize(text string) []string {
	parts := strings.Split(filterReplacer.Replace(strings.ToLower(text)), Split)
	tokens := parts[:0]
	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}
