package masking

import (
	"strconv"
	"strings"

	"github.com/adverant/nexus/doctranslate-worker/internal/glossary"
)

// Default token delimiters. Translation providers pass bracket runs
// through untouched in practice.
const (
	DefaultOpen  = "[[["
	DefaultClose = "]]]"
)

// TokenMap maps each placeholder token to the term it replaced. It lives
// for a single translation call.
type TokenMap map[string]string

// Unmask restores every intact token in s. Tokens the translator altered
// are left as they are.
func (m TokenMap) Unmask(s string) string {
	if len(m) == 0 {
		return s
	}
	pairs := make([]string, 0, len(m)*2)
	for tok, term := range m {
		pairs = append(pairs, tok, term)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// Masker substitutes glossary terms with counter tokens.
type Masker struct {
	open, close string
}

// NewMasker returns a masker using the default delimiters.
func NewMasker() *Masker {
	return &Masker{open: DefaultOpen, close: DefaultClose}
}

// NewMaskerWithDelimiters returns a masker using custom delimiters.
func NewMaskerWithDelimiters(open, close string) *Masker {
	return &Masker{open: open, close: close}
}

type segment struct {
	text  string
	token bool
}

// Mask replaces every occurrence of each glossary term, longest term
// first, with a token unique within this call. Terms are only matched in
// text that has not already been replaced, so a shorter term never
// splits a longer one or matches inside a token.
func (m *Masker) Mask(text string, terms *glossary.Store) (string, TokenMap) {
	tokens := TokenMap{}
	if terms == nil || terms.Len() == 0 || text == "" {
		return text, tokens
	}

	segs := []segment{{text: text}}
	counter := 0
	for _, term := range terms.Terms() {
		if !literalContains(segs, term) {
			continue
		}
		tok := m.nextToken(&counter, text)
		tokens[tok] = term
		segs = substitute(segs, term, tok)
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, s := range segs {
		b.WriteString(s.text)
	}
	return b.String(), tokens
}

// nextToken returns the next counter token that does not already occur in
// the source text.
func (m *Masker) nextToken(counter *int, source string) string {
	for {
		tok := m.open + strconv.Itoa(*counter) + m.close
		*counter++
		if !strings.Contains(source, tok) {
			return tok
		}
	}
}

func literalContains(segs []segment, term string) bool {
	for _, s := range segs {
		if !s.token && strings.Contains(s.text, term) {
			return true
		}
	}
	return false
}

func substitute(segs []segment, term, tok string) []segment {
	out := make([]segment, 0, len(segs)+2)
	for _, s := range segs {
		if s.token || !strings.Contains(s.text, term) {
			out = append(out, s)
			continue
		}
		parts := strings.Split(s.text, term)
		for i, p := range parts {
			if i > 0 {
				out = append(out, segment{text: tok, token: true})
			}
			if p != "" {
				out = append(out, segment{text: p})
			}
		}
	}
	return out
}
