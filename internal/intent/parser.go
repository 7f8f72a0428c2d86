// Package intent turns free-text chat messages into typed intents. Parsing
// is deterministic keyword and pattern matching driven by a configurable
// Vocabulary; there is no language model involved.
package intent

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/requestline/intake-bot/internal/catalog"
	"github.com/requestline/intake-bot/internal/fsm"
)

type Type string

const (
	TypeCancel           Type = "cancel"
	TypeMediaRequest     Type = "media_request"
	TypeSelection        Type = "selection"
	TypeSubunitSelection Type = "subunit_selection"
	TypeConfirmation     Type = "confirmation"
	TypeUnknown          Type = "unknown"
)

// Intent is the parsed form of one inbound message. Only the fields
// relevant for Type are set.
type Intent struct {
	Type        Type
	Kind        catalog.MediaKind
	Query       string
	Selection   int
	Subunits    []int
	AllSubunits bool
	Confirmed   bool
}

// numberWords maps the English word forms accepted as selections.
var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

type Parser struct {
	vocab Vocabulary

	cancelRe  *regexp.Regexp
	confirmRe *regexp.Regexp
	denyRe    *regexp.Regexp
	movieRe   *regexp.Regexp
	seriesRe  *regexp.Regexp
	stripRe   *regexp.Regexp
}

func NewParser(vocab Vocabulary) (*Parser, error) {
	cancelRe, err := wordSetRegexp(vocab.Cancel)
	if err != nil {
		return nil, fmt.Errorf("compiling cancel set: %w", err)
	}

	confirmRe, err := wordSetRegexp(vocab.Confirm)
	if err != nil {
		return nil, fmt.Errorf("compiling confirm set: %w", err)
	}

	denyRe, err := wordSetRegexp(vocab.Deny)
	if err != nil {
		return nil, fmt.Errorf("compiling deny set: %w", err)
	}

	movieRe, err := wordSetRegexp(vocab.Movie)
	if err != nil {
		return nil, fmt.Errorf("compiling movie set: %w", err)
	}

	seriesRe, err := wordSetRegexp(vocab.Series)
	if err != nil {
		return nil, fmt.Errorf("compiling series set: %w", err)
	}

	strip := make([]string, 0, len(vocab.Fillers)+len(vocab.Movie)+len(vocab.Series))
	strip = append(strip, vocab.Fillers...)
	strip = append(strip, vocab.Movie...)
	strip = append(strip, vocab.Series...)
	stripRe, err := wordSetRegexp(strip)
	if err != nil {
		return nil, fmt.Errorf("compiling filler set: %w", err)
	}

	return &Parser{
		vocab:     vocab,
		cancelRe:  cancelRe,
		confirmRe: confirmRe,
		denyRe:    denyRe,
		movieRe:   movieRe,
		seriesRe:  seriesRe,
		stripRe:   stripRe,
	}, nil
}

// Parse classifies text into an Intent. The current conversation state is
// only consulted for context-sensitive rules (subunit selection); parsing
// has no side effects and is idempotent for identical input.
//
// Precedence, first match wins: cancel keywords, subunit selection (when in
// that state), numeric selection, confirmation keywords, media request,
// unknown.
func (p *Parser) Parse(text string, current fsm.State) Intent {
	trimmed := strings.TrimSpace(text)
	lowered := strings.ToLower(trimmed)
	if lowered == "" {
		return Intent{Type: TypeUnknown}
	}

	// A cancel keyword wins over everything, including a pending
	// confirmation ("no cancel please" cancels, it does not decline).
	if p.cancelRe.MatchString(lowered) {
		return Intent{Type: TypeCancel}
	}

	if current == fsm.StateAwaitingSubunitSelection {
		if in, ok := parseSubunits(lowered); ok {
			return in
		}
	}

	if n, ok := parseNumber(lowered); ok {
		return Intent{Type: TypeSelection, Selection: n}
	}

	confirmed := p.confirmRe.MatchString(lowered)
	if confirmed || p.denyRe.MatchString(lowered) {
		return Intent{Type: TypeConfirmation, Confirmed: confirmed}
	}

	if in, ok := p.parseMediaRequest(trimmed, lowered); ok {
		return in
	}

	return Intent{Type: TypeUnknown}
}

// parseNumber accepts a bare integer or its English word form up to twenty.
func parseNumber(lowered string) (int, bool) {
	if n, err := strconv.Atoi(lowered); err == nil {
		return n, true
	}

	n, ok := numberWords[lowered]

	return n, ok
}

// parseSubunits accepts "all", a bare integer, or a comma-separated integer
// list. Duplicates are removed and the result is sorted ascending.
func parseSubunits(lowered string) (Intent, bool) {
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return Intent{}, false
	}

	if slices.Contains(fields, "all") {
		return Intent{Type: TypeSubunitSelection, AllSubunits: true}, true
	}

	seen := make(map[int]struct{}, len(fields))
	units := make([]int, 0, len(fields))
	for _, f := range fields {
		if f == "and" {
			continue
		}

		n, err := strconv.Atoi(f)
		if err != nil {
			return Intent{}, false
		}

		if _, ok := seen[n]; ok {
			continue
		}

		seen[n] = struct{}{}
		units = append(units, n)
	}

	if len(units) == 0 {
		return Intent{}, false
	}

	sort.Ints(units)

	return Intent{Type: TypeSubunitSelection, Subunits: units}, true
}

// parseMediaRequest strips filler phrases and kind keywords and treats what
// remains as a search query when enough of it is left. Kind keywords decide
// between movie and series; ambiguous text searches both.
func (p *Parser) parseMediaRequest(trimmed, lowered string) (Intent, bool) {
	cleaned := strings.Join(strings.Fields(p.stripRe.ReplaceAllString(trimmed, " ")), " ")

	substance := 0
	for _, r := range cleaned {
		if !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			substance++
		}
	}
	if substance < 2 {
		return Intent{}, false
	}

	movie := p.movieRe.MatchString(lowered)
	series := p.seriesRe.MatchString(lowered)

	kind := catalog.MediaKindAll
	switch {
	case movie && !series:
		kind = catalog.MediaKindMovie
	case series && !movie:
		kind = catalog.MediaKindSeries
	}

	return Intent{Type: TypeMediaRequest, Kind: kind, Query: cleaned}, true
}

// wordSetRegexp compiles a case-insensitive word-boundary alternation over
// the given words and phrases. Longer entries are tried first so phrases
// win over their own prefixes.
func wordSetRegexp(words []string) (*regexp.Regexp, error) {
	ordered := make([]string, len(words))
	copy(ordered, words)
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	quoted := make([]string, 0, len(ordered))
	for _, w := range ordered {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}

		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	if len(quoted) == 0 {
		return nil, fmt.Errorf("empty word set")
	}

	re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	if err != nil {
		return nil, fmt.Errorf("compiling word set: %w", err)
	}

	return re, nil
}
