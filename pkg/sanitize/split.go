package sanitize

import (
	"strings"
	"unicode/utf16"
)

const (
	paragraphSep = "\n\n"
	sentenceSep  = ". "
)

// piece is a unit of packing plus the separator that joins it to the previous one.
type piece struct {
	text string
	sep  string
}

// Split breaks text into ordered chunks of at most limit UTF-16 code units
// each, the unit Telegram counts message length in. Text within the limit
// comes back as a single trimmed chunk. Longer text is packed paragraph by
// paragraph; oversized paragraphs fall back to sentences and oversized
// sentences to words.
func Split(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if limit <= 0 || textLen(text) <= limit {
		return []string{text}
	}

	var pieces []piece
	for _, para := range strings.Split(text, paragraphSep) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if textLen(para) <= limit {
			pieces = append(pieces, piece{text: para, sep: paragraphSep})
			continue
		}
		for i, s := range splitSentences(para, limit) {
			sep := " "
			if i == 0 {
				sep = paragraphSep
			}
			pieces = append(pieces, piece{text: s, sep: sep})
		}
	}

	var chunks []string
	var cur string
	for _, p := range pieces {
		if cur == "" {
			cur = p.text
			continue
		}
		if candidate := cur + p.sep + p.text; textLen(candidate) <= limit {
			cur = candidate
			continue
		}
		chunks = append(chunks, strings.TrimSpace(cur))
		cur = p.text
	}
	if cur = strings.TrimSpace(cur); cur != "" {
		chunks = append(chunks, cur)
	}
	return chunks
}

// splitSentences cuts a paragraph on ". " and restores the period on every
// sentence but the last. Sentences still over the limit are hard-wrapped.
func splitSentences(para string, limit int) []string {
	parts := strings.Split(para, sentenceSep)
	out := make([]string, 0, len(parts))
	for i, s := range parts {
		if i < len(parts)-1 {
			s += "."
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if textLen(s) <= limit {
			out = append(out, s)
			continue
		}
		out = append(out, hardWrap(s, limit)...)
	}
	return out
}

// hardWrap packs whitespace-separated words; a word longer than the limit is
// cut on rune boundaries.
func hardWrap(s string, limit int) []string {
	var out []string
	var cur string
	for _, word := range strings.Fields(s) {
		for textLen(word) > limit {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			head, tail := cutUnits(word, limit)
			out = append(out, head)
			word = tail
		}
		if word == "" {
			continue
		}
		switch {
		case cur == "":
			cur = word
		case textLen(cur)+1+textLen(word) <= limit:
			cur += " " + word
		default:
			out = append(out, cur)
			cur = word
		}
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// cutUnits returns the longest prefix of s within n UTF-16 units and the rest.
// A surrogate pair is never split; the first rune is always taken.
func cutUnits(s string, n int) (string, string) {
	used := 0
	for pos, r := range s {
		w := unitLen(r)
		if pos > 0 && used+w > n {
			return s[:pos], s[pos:]
		}
		used += w
	}
	return s, ""
}

// textLen counts UTF-16 code units: characters outside the Basic
// Multilingual Plane, emoji included, count twice.
func textLen(s string) int {
	n := 0
	for _, r := range s {
		n += unitLen(r)
	}
	return n
}

func unitLen(r rune) int {
	if w := utf16.RuneLen(r); w > 0 {
		return w
	}
	return 1
}
