// Package highlight maps free-text issue descriptions to suggested research
// projects and marks the matched keywords for display.
//
// A keyword matches as a whole word, case-insensitively, and whitespace inside
// a multi-word keyword matches any run of whitespace in the text.
package highlight

import (
	"fmt"
	"html"
	"html/template"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cexll/jiralabel/internal/labels"
)

// Marker is the pair of strings wrapped around every matched keyword.
type Marker struct {
	Open  string
	Close string
}

// DefaultMarker wraps matches in an HTML mark element.
var DefaultMarker = Marker{Open: "<mark>", Close: "</mark>"}

// Segment is a span of the input text. Match is true for keyword spans.
type Segment struct {
	Text  string
	Match bool
}

// Highlighter holds the compiled keyword matchers. It is safe for concurrent use.
type Highlighter struct {
	byLabel map[labels.Label]*matcher
	all     *matcher
}

// New compiles the matchers for rules once.
func New(rules *labels.Rules) (*Highlighter, error) {
	h := &Highlighter{byLabel: make(map[labels.Label]*matcher)}

	var every []string
	for _, l := range rules.Labels() {
		phrases := rules.Keywords(l)
		re, err := compile(phrases)
		if err != nil {
			return nil, fmt.Errorf("failed to compile keywords for %s: %w", l, err)
		}
		h.byLabel[l] = re
		every = append(every, phrases...)
	}

	if len(every) > 0 {
		re, err := compile(every)
		if err != nil {
			return nil, fmt.Errorf("failed to compile keyword set: %w", err)
		}
		h.all = re
	}
	return h, nil
}

// IsHighlighted reports whether any keyword of label occurs in text.
// A label without keywords never matches.
func (h *Highlighter) IsHighlighted(label labels.Label, text string) bool {
	m, ok := h.byLabel[label]
	if !ok {
		return false
	}
	_, _, found := m.next(text, 0)
	return found
}

// Suggestions returns the labels whose keywords occur in text, in display order.
func (h *Highlighter) Suggestions(text string) []labels.Label {
	var out []labels.Label
	for _, l := range labels.All() {
		if h.IsHighlighted(l, text) {
			out = append(out, l)
		}
	}
	return out
}

// Segments splits text into literal and keyword spans in a single left-to-right
// scan. At each position the longest keyword wins, and a consumed span is never
// matched twice. Concatenating the segment texts yields text unchanged.
func (h *Highlighter) Segments(text string) []Segment {
	if text == "" {
		return nil
	}
	if h.all == nil {
		return []Segment{{Text: text}}
	}

	var out []Segment
	pos := 0
	for pos < len(text) {
		start, end, ok := h.all.next(text, pos)
		if !ok {
			break
		}
		if start > pos {
			out = append(out, Segment{Text: text[pos:start]})
		}
		out = append(out, Segment{Text: text[start:end], Match: true})
		pos = end
	}
	if pos < len(text) {
		out = append(out, Segment{Text: text[pos:]})
	}
	return out
}

// Render wraps every keyword in text with DefaultMarker.
func (h *Highlighter) Render(text string) string {
	return h.RenderWith(text, DefaultMarker)
}

// RenderWith wraps every keyword in text with m. Text outside matches, and the
// casing of matched text, is preserved verbatim.
func (h *Highlighter) RenderWith(text string, m Marker) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, seg := range h.Segments(text) {
		if seg.Match {
			b.WriteString(m.Open)
			b.WriteString(seg.Text)
			b.WriteString(m.Close)
			continue
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

// HTML is Render for templates: every span is escaped before the mark
// elements are added.
func (h *Highlighter) HTML(text string) template.HTML {
	var b strings.Builder
	for _, seg := range h.Segments(text) {
		if seg.Match {
			b.WriteString(DefaultMarker.Open)
			b.WriteString(html.EscapeString(seg.Text))
			b.WriteString(DefaultMarker.Close)
			continue
		}
		b.WriteString(html.EscapeString(seg.Text))
	}
	return template.HTML(b.String())
}

// matcher finds whole-word keyword occurrences. any locates candidate starts
// without regard to word boundaries; phrases, longest first, then decide which
// keyword, if any, really starts there. Go's regexp has no Unicode-aware \b,
// so boundaries are checked on the runes around each candidate.
type matcher struct {
	any     *regexp.Regexp
	phrases []phrase
}

type phrase struct {
	re        *regexp.Regexp // anchored at the candidate start
	wordStart bool
	wordEnd   bool
}

// compile builds the matcher for phrases. Duplicates differing only in case
// are merged.
func compile(phrases []string) (*matcher, error) {
	uniq := make(map[string]string, len(phrases))
	for _, p := range phrases {
		uniq[strings.ToLower(p)] = p
	}
	ordered := make([]string, 0, len(uniq))
	for _, p := range uniq {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return strings.ToLower(ordered[i]) < strings.ToLower(ordered[j])
	})

	m := &matcher{}
	parts := make([]string, 0, len(ordered))
	for _, p := range ordered {
		words := strings.Fields(p)
		if len(words) == 0 {
			continue
		}
		pat := phrasePattern(words)
		re, err := regexp.Compile(`(?i)^(?:` + pat + `)`)
		if err != nil {
			return nil, err
		}
		first, _ := utf8.DecodeRuneInString(words[0])
		lastWord := words[len(words)-1]
		last, _ := utf8.DecodeLastRuneInString(lastWord)
		m.phrases = append(m.phrases, phrase{re: re, wordStart: isWordRune(first), wordEnd: isWordRune(last)})
		parts = append(parts, pat)
	}

	re, err := regexp.Compile(`(?i)(?:` + strings.Join(parts, "|") + `)`)
	if err != nil {
		return nil, err
	}
	m.any = re
	return m, nil
}

// next returns the first whole-word keyword at or after pos. At a given start
// the longest keyword wins.
func (m *matcher) next(text string, pos int) (start, end int, ok bool) {
	if len(m.phrases) == 0 {
		return 0, 0, false
	}
	for pos < len(text) {
		loc := m.any.FindStringIndex(text[pos:])
		if loc == nil {
			return 0, 0, false
		}
		start = pos + loc[0]
		if end, ok = m.at(text, start); ok {
			return start, end, true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return 0, 0, false
}

func (m *matcher) at(text string, start int) (int, bool) {
	before, _ := utf8.DecodeLastRuneInString(text[:start])
	leftOpen := start == 0 || !isWordRune(before)
	for _, p := range m.phrases {
		if p.wordStart && !leftOpen {
			continue
		}
		loc := p.re.FindStringIndex(text[start:])
		if loc == nil || loc[1] == 0 {
			continue
		}
		end := start + loc[1]
		if p.wordEnd && end < len(text) {
			after, _ := utf8.DecodeRuneInString(text[end:])
			if isWordRune(after) {
				continue
			}
		}
		return end, true
	}
	return 0, false
}

func phrasePattern(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, `\s+`)
}

// isWordRune reports whether r can be part of a word in any script.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
