package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/eval-consensus/internal/expertise"
	"github.com/ZanzyTHEbar/eval-consensus/internal/types"
)

const dedupPrefixRunes = 50

// Comment is one atomic feedback unit. It always traces to exactly one
// evaluation through EvaluationToken.
type Comment struct {
	ID              string          `json:"id"`
	EvaluationToken string          `json:"evaluationToken"`
	Ordinal         int             `json:"ordinal"`
	Component       string          `json:"component"`
	Subfield        string          `json:"subfield"`
	Text            string          `json:"text"`
	Rating          *float64        `json:"rating,omitempty"`
	Evaluator       string          `json:"evaluator"`
	EvaluatorName   string          `json:"evaluatorName,omitempty"`
	PaperTitle      string          `json:"paperTitle"`
	PaperDOI        string          `json:"paperDOI,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	Expertise       expertise.Class `json:"expertise"`
}

// Header is everything known about an evaluation apart from its comments
type Header struct {
	Token         string             `json:"token"`
	PaperTitle    string             `json:"paperTitle"`
	PaperDOI      string             `json:"paperDOI,omitempty"`
	Evaluator     string             `json:"evaluator"`
	EvaluatorName string             `json:"evaluatorName,omitempty"`
	Email         string             `json:"email,omitempty"`
	Profile       *expertise.Profile `json:"profile,omitempty"`
	Expertise     expertise.Class    `json:"expertise"`
	Timestamp     time.Time          `json:"timestamp"`
}

// Extractor walks evaluation records against a schema
type Extractor struct {
	schema *Schema
}

// NewExtractor validates the schema; a nil schema selects DefaultSchema
func NewExtractor(schema *Schema) (*Extractor, error) {
	if schema == nil {
		schema = DefaultSchema()
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{schema: schema}, nil
}

// Schema returns the schema the extractor was built with
func (e *Extractor) Schema() *Schema {
	return e.schema
}

// Describe resolves the token, paper identity, evaluator and timestamp of an
// evaluation. Unresolvable fields are left empty.
func (e *Extractor) Describe(ev types.Evaluation) Header {
	data := ev.Data
	h := Header{
		Token:      e.token(ev),
		PaperTitle: firstText(data, e.schema.Paper.Title),
		PaperDOI:   firstText(data, e.schema.Paper.DOI),
		Timestamp:  firstTime(data, e.schema.Timestamp),
	}

	paths := e.schema.Evaluator
	h.Email = strings.ToLower(firstText(data, paths.Email))
	h.EvaluatorName = strings.TrimSpace(firstText(data, paths.FirstName) + " " + firstText(data, paths.LastName))

	switch {
	case h.Email != "":
		h.Evaluator = h.Email
	case h.EvaluatorName != "":
		h.Evaluator = h.EvaluatorName
	default:
		h.Evaluator = "anonymous:" + h.Token
	}

	profile := &expertise.Profile{
		Role:                 firstText(data, paths.Role),
		DomainExpertise:      firstText(data, paths.DomainExpertise),
		EvaluationExperience: firstText(data, paths.EvaluationExperience),
	}
	if w, ok := firstFloat(data, paths.Weight); ok {
		profile.Weight = &w
	}
	if !profile.Empty() {
		h.Profile = profile
	}
	h.Expertise = expertise.Classify(h.Profile)

	return h
}

// Extract emits the comments of one evaluation in schema order, skipping
// blank text and duplicates of (component, subfield, text prefix)
func (e *Extractor) Extract(ev types.Evaluation) []Comment {
	h := e.Describe(ev)
	out := make([]Comment, 0, 8)
	seen := make(map[string]bool)

	emit := func(component, subfield string, raw types.Value, rating *float64) {
		text, ok := raw.Text()
		if !ok {
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		key := component + "\x1f" + subfield + "\x1f" + prefix(text, dedupPrefixRunes)
		if seen[key] {
			return
		}
		seen[key] = true

		ordinal := len(out)
		out = append(out, Comment{
			ID:              commentID(h.Token, component, subfield, ordinal),
			EvaluationToken: h.Token,
			Ordinal:         ordinal,
			Component:       component,
			Subfield:        subfield,
			Text:            text,
			Rating:          rating,
			Evaluator:       h.Evaluator,
			EvaluatorName:   h.EvaluatorName,
			PaperTitle:      h.PaperTitle,
			PaperDOI:        h.PaperDOI,
			Timestamp:       h.Timestamp,
			Expertise:       h.Expertise,
		})
	}

	for _, c := range e.schema.Components {
		for _, f := range c.Fields {
			raw, ok := ev.Data.Lookup(f.Path...)
			if !ok {
				continue
			}
			var rating *float64
			if len(f.RatingPath) > 0 {
				rating = lookupFloat(ev.Data, f.RatingPath)
			}
			emit(c.Name, f.Subfield, raw, rating)
		}

		if c.Dynamic == nil {
			continue
		}
		node, ok := ev.Data.Lookup(c.Dynamic.Path...)
		if !ok || node.Kind() != types.KindRecord {
			continue
		}
		for _, key := range node.Keys() {
			child, _ := node.Lookup(key)
			switch child.Kind() {
			case types.KindString:
				emit(c.Name, key, child, nil)
			case types.KindRecord:
				text := firstChild(child, c.Dynamic.CommentKeys)
				var rating *float64
				for _, rk := range c.Dynamic.RatingKeys {
					if rating = lookupFloat(child, Path{rk}); rating != nil {
						break
					}
				}
				emit(c.Name, key, text, rating)
			}
		}
	}

	return out
}

// ExtractAll flattens the comments of every evaluation, preserving order
func (e *Extractor) ExtractAll(evaluations []types.Evaluation) []Comment {
	out := make([]Comment, 0, len(evaluations)*4)
	for _, ev := range evaluations {
		out = append(out, e.Extract(ev)...)
	}
	return out
}

func (e *Extractor) token(ev types.Evaluation) string {
	if t := strings.TrimSpace(ev.Token); t != "" {
		return t
	}
	for _, p := range e.schema.Token {
		v, ok := ev.Data.Lookup(p...)
		if !ok {
			continue
		}
		if s, ok := v.Text(); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		if f, ok := v.Float(); ok && v.Kind() == types.KindNumber {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return DerivedToken(ev.Data)
}

// DerivedToken identifies a record that carries no token of its own by the
// hash of its canonical JSON
func DerivedToken(data types.Value) string {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte(fmt.Sprint(data.Interface()))
	}
	sum := sha256.Sum256(raw)
	return "eval-" + hex.EncodeToString(sum[:8])
}

func commentID(token, component, subfield string, ordinal int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%d", token, component, subfield, ordinal)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func firstText(v types.Value, paths []Path) string {
	for _, p := range paths {
		node, ok := v.Lookup(p...)
		if !ok {
			continue
		}
		if s, ok := node.Text(); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstFloat(v types.Value, paths []Path) (float64, bool) {
	for _, p := range paths {
		if f := lookupFloat(v, p); f != nil {
			return *f, true
		}
	}
	return 0, false
}

func firstChild(v types.Value, keys []string) types.Value {
	for _, k := range keys {
		child, ok := v.Lookup(k)
		if !ok {
			continue
		}
		if s, ok := child.Text(); ok && strings.TrimSpace(s) != "" {
			return child
		}
	}
	return types.Null()
}

func lookupFloat(v types.Value, p Path) *float64 {
	node, ok := v.Lookup(p...)
	if !ok {
		return nil
	}
	f, ok := node.Float()
	if !ok {
		return nil
	}
	return &f
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// firstTime accepts RFC3339-ish strings and unix timestamps in seconds or
// milliseconds. Unparseable values yield the zero time.
func firstTime(v types.Value, paths []Path) time.Time {
	for _, p := range paths {
		node, ok := v.Lookup(p...)
		if !ok {
			continue
		}
		switch node.Kind() {
		case types.KindString:
			s, _ := node.Text()
			s = strings.TrimSpace(s)
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t.UTC()
				}
			}
		case types.KindNumber:
			f, ok := node.Float()
			if !ok || f <= 0 {
				continue
			}
			if f > 1e11 {
				return time.UnixMilli(int64(f)).UTC()
			}
			sec, frac := math.Modf(f)
			return time.Unix(int64(sec), int64(frac*1e9)).UTC()
		}
	}
	return time.Time{}
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
