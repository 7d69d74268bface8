package simhash

import (
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// FingerprintLayout computes a SimHash of the markup structure: tag names
// with their sorted class lists, in document order. Text and every other
// attribute are ignored, so a new edition with different institutions keeps
// its fingerprint while a renamed cell class or a reshaped row moves it.
func FingerprintLayout(htmlStr string) uint64 {
	tokens := layoutTokens(htmlStr)
	if len(tokens) == 0 {
		return 0
	}

	shingles := makeShingles(tokens, 3)
	if len(shingles) == 0 {
		return Fingerprint(strings.Join(tokens, " "))
	}
	return Fingerprint(strings.Join(shingles, " "))
}

// layoutTokens walks the markup with the tokenizer and emits "tag" or
// "tag.classA.classB" for every start tag.
func layoutTokens(htmlStr string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	var tokens []string

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return tokens
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			token := string(name)
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = tokenizer.TagAttr()
				if string(key) != "class" {
					continue
				}
				classes := strings.Fields(string(val))
				sort.Strings(classes)
				if len(classes) > 0 {
					token += "." + strings.Join(classes, ".")
				}
			}
			tokens = append(tokens, token)
		}
	}
}

// makeShingles creates n-gram shingles from a slice of tokens.
func makeShingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}

	shingles := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		shingles = append(shingles, strings.Join(tokens[i:i+n], "_"))
	}
	return shingles
}
