package router

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// keywordRule is one compiled row of an ordered keyword table.
type keywordRule struct {
	tag       string
	keywords  []string
	responder string
	wholeWord bool
}

func newKeywordRule(tag string, keywords []string, responder string, wholeWord bool) keywordRule {
	r := keywordRule{tag: tag, responder: responder, wholeWord: wholeWord}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			r.keywords = append(r.keywords, kw)
		}
	}
	return r
}

// match returns the keywords of r found in the lower-cased text.
func (r keywordRule) match(text string) []string {
	var matched []string
	for _, kw := range r.keywords {
		if containsKeyword(text, kw, r.wholeWord) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// containsKeyword checks if text contains the keyword, either anywhere or only
// between word boundaries.
func containsKeyword(text, keyword string, wholeWord bool) bool {
	if !wholeWord {
		return strings.Contains(text, keyword)
	}
	return containsWord(text, keyword)
}

// containsWord checks every occurrence of word until one sits on word boundaries.
func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	offset := 0
	for {
		idx := strings.Index(text[offset:], word)
		if idx == -1 {
			return false
		}
		start := offset + idx
		end := start + len(word)

		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}

		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
