package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// TagKind is the class prefix of a keyword tag.
type TagKind string

const (
	TagLocation TagKind = "LOC"
	TagUnit     TagKind = "UNIT"
	TagWeapon   TagKind = "WEAP"
	TagAction   TagKind = "ACT"
	TagDate     TagKind = "DATE"
)

// Tag is a "KIND:value" keyword, e.g. "LOC:bakhmut".
type Tag string

// NewTag builds a tag from a kind and a value.
func NewTag(kind TagKind, value string) Tag {
	return Tag(string(kind) + ":" + value)
}

// Kind returns the prefix before the first colon.
func (t Tag) Kind() TagKind {
	kind, _, _ := strings.Cut(string(t), ":")
	return TagKind(kind)
}

// Value returns the part after the first colon.
func (t Tag) Value() string {
	_, v, _ := strings.Cut(string(t), ":")
	return v
}

// TagSet is an unordered set of tags.
type TagSet map[Tag]struct{}

// NewTagSet builds a set from the given tags.
func NewTagSet(tags ...Tag) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Add inserts a tag.
func (s TagSet) Add(t Tag) {
	s[t] = struct{}{}
}

// Has reports membership.
func (s TagSet) Has(t Tag) bool {
	_, ok := s[t]
	return ok
}

// Union adds every tag of other into s.
func (s TagSet) Union(other TagSet) {
	for t := range other {
		s[t] = struct{}{}
	}
}

// SharesAny reports whether s and other have at least one common tag whose
// kind is one of kinds.
func (s TagSet) SharesAny(other TagSet, kinds ...TagKind) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for t := range small {
		if _, ok := large[t]; !ok {
			continue
		}
		k := t.Kind()
		for _, want := range kinds {
			if k == want {
				return true
			}
		}
	}
	return false
}

// Sorted returns the tags in lexical order.
func (s TagSet) Sorted() []Tag {
	out := make([]Tag, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Vocabulary lists the terms the extractor looks for, per tag kind.
type Vocabulary struct {
	Locations []string `yaml:"locations"`
	Units     []string `yaml:"units"`
	Weapons   []string `yaml:"weapons"`
	Actions   []string `yaml:"actions"`
}

// DefaultVocabulary covers the Ukraine theatre.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Locations: []string{
			"kyiv", "kiev", "kharkiv", "odesa", "odessa", "dnipro", "zaporizhzhia",
			"kherson", "mykolaiv", "donetsk", "luhansk", "mariupol", "bakhmut",
			"avdiivka", "pokrovsk", "kramatorsk", "sloviansk", "kostiantynivka",
			"chasiv yar", "toretsk", "vuhledar", "kupiansk", "lyman", "robotyne",
			"tokmak", "melitopol", "berdiansk", "enerhodar", "sumy", "chernihiv",
			"crimea", "sevastopol", "kerch", "belgorod", "kursk", "bryansk",
			"rostov", "novorossiysk", "lviv", "vinnytsia", "poltava",
		},
		Units: []string{
			"brigade", "battalion", "regiment", "division", "corps", "platoon",
			"company", "marines", "airborne", "vdv", "azov", "wagner", "spetsnaz",
			"territorial defense", "national guard", "assault group",
		},
		Weapons: []string{
			"himars", "atacms", "storm shadow", "scalp", "shahed", "geran",
			"iskander", "kalibr", "kinzhal", "kh-101", "kh-22", "lancet", "fpv",
			"drone", "uav", "artillery", "howitzer", "mortar", "tank", "bradley",
			"leopard", "abrams", "patriot", "s-300", "s-400", "grad", "mlrs",
			"glide bomb", "kab", "cluster munition", "missile",
		},
		Actions: []string{
			"strike", "struck", "attack", "shelling", "shelled", "explosion",
			"destroyed", "shot down", "intercepted", "advance", "assault", "hit",
			"killed", "captured", "liberated", "repelled", "ambush", "sabotage",
		},
	}
}

type vocabList struct {
	kind  TagKind
	terms []string
}

// KeywordExtractor tags text against a fixed vocabulary. It holds no mutable
// state and is safe for concurrent use.
type KeywordExtractor struct {
	lists []vocabList
}

// NewKeywordExtractor lowercases and de-duplicates the vocabulary.
func NewKeywordExtractor(v Vocabulary) *KeywordExtractor {
	return &KeywordExtractor{
		lists: []vocabList{
			{kind: TagLocation, terms: normalizeTerms(v.Locations)},
			{kind: TagUnit, terms: normalizeTerms(v.Units)},
			{kind: TagWeapon, terms: normalizeTerms(v.Weapons)},
			{kind: TagAction, terms: normalizeTerms(v.Actions)},
		},
	}
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

var (
	// numericDateRe matches DD/MM, e.g. "05/03" or "5/3".
	numericDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})\b`)

	// monthDateRe matches "Month DD" with full or abbreviated month names.
	monthDateRe = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{1,2})\b`)

	monthNumbers = map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}
)

// Extract returns every tag found in text.
func (e *KeywordExtractor) Extract(text string) TagSet {
	lower := strings.ToLower(text)
	tags := make(TagSet)
	for _, l := range e.lists {
		for _, term := range l.terms {
			if strings.Contains(lower, term) {
				tags.Add(NewTag(l.kind, term))
			}
		}
	}
	for _, d := range extractDates(text) {
		tags.Add(NewTag(TagDate, d))
	}
	return tags
}

// LocationsInOrder returns the location terms found in text ordered by first
// occurrence. Ties at the same offset prefer the longer term.
func (e *KeywordExtractor) LocationsInOrder(text string) []string {
	lower := strings.ToLower(text)
	type hit struct {
		term string
		at   int
	}
	var hits []hit
	for _, l := range e.lists {
		if l.kind != TagLocation {
			continue
		}
		for _, term := range l.terms {
			if i := strings.Index(lower, term); i >= 0 {
				hits = append(hits, hit{term: term, at: i})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].at != hits[j].at {
			return hits[i].at < hits[j].at
		}
		return len(hits[i].term) > len(hits[j].term)
	})
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.term
	}
	return out
}

// extractDates normalises DD/MM and Month DD mentions to "DD/MM".
func extractDates(text string) []string {
	var out []string
	for _, m := range numericDateRe.FindAllStringSubmatch(text, -1) {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if d, ok := formatDayMonth(day, month); ok {
			out = append(out, d)
		}
	}
	for _, m := range monthDateRe.FindAllStringSubmatch(text, -1) {
		month := monthNumbers[strings.ToLower(m[1])[:3]]
		day, _ := strconv.Atoi(m[2])
		if d, ok := formatDayMonth(day, month); ok {
			out = append(out, d)
		}
	}
	return out
}

func formatDayMonth(day, month int) (string, bool) {
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return "", false
	}
	return fmt.Sprintf("%02d/%02d", day, month), true
}
