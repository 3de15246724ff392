package extraction

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidSchema is wrapped by every schema validation failure
var ErrInvalidSchema = errors.New("invalid extraction schema")

// Path addresses a node in an evaluation record. In YAML it may be written
// as a sequence or as a dotted string.
type Path []string

func (p Path) String() string { return strings.Join(p, ".") }

// UnmarshalYAML accepts both "a.b.c" and [a, b, c]
func (p *Path) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*p = nil
			return nil
		}
		*p = strings.Split(s, ".")
		return nil
	case yaml.SequenceNode:
		var parts []string
		if err := node.Decode(&parts); err != nil {
			return err
		}
		*p = parts
		return nil
	default:
		return fmt.Errorf("line %d: path must be a string or a list", node.Line)
	}
}

// Field declares one statically known comment location
type Field struct {
	Path       Path   `yaml:"path"`
	Subfield   string `yaml:"subfield"`
	RatingPath Path   `yaml:"rating_path,omitempty"`
}

// Dynamic declares a record whose children are sub-fields not known ahead
// of time. String children are comments; record children are searched for
// the first non-empty comment key.
type Dynamic struct {
	Path        Path     `yaml:"path"`
	CommentKeys []string `yaml:"comment_keys"`
	RatingKeys  []string `yaml:"rating_keys,omitempty"`
}

// Component is one named evaluation dimension
type Component struct {
	Name    string   `yaml:"name"`
	Fields  []Field  `yaml:"fields,omitempty"`
	Dynamic *Dynamic `yaml:"dynamic,omitempty"`
}

// PaperPaths lists candidate locations of paper identity, first non-empty wins
type PaperPaths struct {
	Title []Path `yaml:"title"`
	DOI   []Path `yaml:"doi"`
}

// EvaluatorPaths lists candidate locations of evaluator profile fields
type EvaluatorPaths struct {
	Email                []Path `yaml:"email"`
	FirstName            []Path `yaml:"first_name"`
	LastName             []Path `yaml:"last_name"`
	Role                 []Path `yaml:"role"`
	DomainExpertise      []Path `yaml:"domain_expertise"`
	EvaluationExperience []Path `yaml:"evaluation_experience"`
	Weight               []Path `yaml:"weight"`
}

// Schema is the declarative description of where feedback lives inside an
// evaluation record
type Schema struct {
	Components []Component    `yaml:"components"`
	Token      []Path         `yaml:"token"`
	Timestamp  []Path         `yaml:"timestamp"`
	Paper      PaperPaths     `yaml:"paper"`
	Evaluator  EvaluatorPaths `yaml:"evaluator"`
}

// DefaultSchema describes the record shape produced by the evaluation
// frontend: per-component rating/comment pairs under "evaluation", free-form
// content feedback, and the evaluator profile under "userInfo".
func DefaultSchema() *Schema {
	field := func(component, subfield string) Field {
		return Field{
			Path:       Path{"evaluation", component, subfield, "comments"},
			Subfield:   subfield,
			RatingPath: Path{"evaluation", component, subfield, "rating"},
		}
	}

	return &Schema{
		Components: []Component{
			{
				Name: "metadata",
				Fields: []Field{
					field("metadata", "title"),
					field("metadata", "authors"),
					field("metadata", "doi"),
					field("metadata", "publicationYear"),
					field("metadata", "venue"),
				},
			},
			{
				Name: "research_field",
				Fields: []Field{
					field("researchField", "primaryField"),
					field("researchField", "overall"),
				},
			},
			{
				Name: "research_problem",
				Fields: []Field{
					field("researchProblem", "problemTitle"),
					field("researchProblem", "problemDescription"),
					field("researchProblem", "overall"),
				},
			},
			{
				Name: "template",
				Fields: []Field{
					field("template", "templateChoice"),
					field("template", "propertyCoverage"),
					field("template", "overall"),
				},
			},
			{
				Name: "content",
				Dynamic: &Dynamic{
					Path:        Path{"evaluation", "content"},
					CommentKeys: []string{"comments", "comment", "feedback"},
					RatingKeys:  []string{"rating", "score"},
				},
			},
			{
				Name: "general",
				Fields: []Field{
					{
						Path:       Path{"evaluation", "general", "comments"},
						Subfield:   "overall",
						RatingPath: Path{"evaluation", "general", "rating"},
					},
				},
			},
		},
		Token:     []Path{{"token"}, {"id"}, {"evaluationId"}},
		Timestamp: []Path{{"timestamp"}, {"createdAt"}, {"evaluation", "timestamp"}},
		Paper: PaperPaths{
			Title: []Path{
				{"paper", "title"},
				{"metadata", "title"},
				{"evaluation", "metadata", "title", "value"},
				{"paperTitle"},
			},
			DOI: []Path{
				{"paper", "doi"},
				{"metadata", "doi"},
				{"evaluation", "metadata", "doi", "value"},
				{"doi"},
			},
		},
		Evaluator: EvaluatorPaths{
			Email:                []Path{{"userInfo", "email"}, {"evaluator", "email"}},
			FirstName:            []Path{{"userInfo", "firstName"}, {"evaluator", "firstName"}},
			LastName:             []Path{{"userInfo", "lastName"}, {"evaluator", "lastName"}},
			Role:                 []Path{{"userInfo", "role"}, {"evaluator", "role"}},
			DomainExpertise:      []Path{{"userInfo", "domainExpertise"}, {"evaluator", "domainExpertise"}},
			EvaluationExperience: []Path{{"userInfo", "evaluationExperience"}, {"evaluator", "evaluationExperience"}},
			Weight:               []Path{{"userInfo", "expertiseWeight"}, {"evaluator", "expertiseWeight"}},
		},
	}
}

// LoadSchema reads a YAML schema file
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return ParseSchema(data)
}

// ParseSchema decodes a YAML schema. Sections left out fall back to the
// default schema; components must always be declared.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	def := DefaultSchema()
	if len(s.Token) == 0 {
		s.Token = def.Token
	}
	if len(s.Timestamp) == 0 {
		s.Timestamp = def.Timestamp
	}
	if len(s.Paper.Title) == 0 {
		s.Paper.Title = def.Paper.Title
	}
	if len(s.Paper.DOI) == 0 {
		s.Paper.DOI = def.Paper.DOI
	}
	fillEvaluatorDefaults(&s.Evaluator, def.Evaluator)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func fillEvaluatorDefaults(dst *EvaluatorPaths, def EvaluatorPaths) {
	pairs := []struct {
		dst *[]Path
		def []Path
	}{
		{&dst.Email, def.Email},
		{&dst.FirstName, def.FirstName},
		{&dst.LastName, def.LastName},
		{&dst.Role, def.Role},
		{&dst.DomainExpertise, def.DomainExpertise},
		{&dst.EvaluationExperience, def.EvaluationExperience},
		{&dst.Weight, def.Weight},
	}
	for _, p := range pairs {
		if len(*p.dst) == 0 {
			*p.dst = p.def
		}
	}
}

// Validate checks the schema is usable for extraction
func (s *Schema) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: schema is nil", ErrInvalidSchema)
	}
	if len(s.Components) == 0 {
		return fmt.Errorf("%w: no components declared", ErrInvalidSchema)
	}
	if len(s.Paper.Title) == 0 {
		return fmt.Errorf("%w: no paper title paths declared", ErrInvalidSchema)
	}

	seen := make(map[string]bool, len(s.Components))
	for i, c := range s.Components {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return fmt.Errorf("%w: component %d has no name", ErrInvalidSchema, i)
		}
		if seen[name] {
			return fmt.Errorf("%w: component %q declared twice", ErrInvalidSchema, name)
		}
		seen[name] = true

		if len(c.Fields) == 0 && c.Dynamic == nil {
			return fmt.Errorf("%w: component %q has neither fields nor dynamic mode", ErrInvalidSchema, name)
		}
		for j, f := range c.Fields {
			if len(f.Path) == 0 {
				return fmt.Errorf("%w: component %q field %d has an empty path", ErrInvalidSchema, name, j)
			}
			if strings.TrimSpace(f.Subfield) == "" {
				return fmt.Errorf("%w: component %q field %s has no subfield label", ErrInvalidSchema, name, f.Path)
			}
		}
		if c.Dynamic != nil {
			if len(c.Dynamic.Path) == 0 {
				return fmt.Errorf("%w: component %q dynamic mode has an empty path", ErrInvalidSchema, name)
			}
			if len(c.Dynamic.CommentKeys) == 0 {
				return fmt.Errorf("%w: component %q dynamic mode has no comment keys", ErrInvalidSchema, name)
			}
		}
	}
	return nil
}

// ComponentNames returns the declared component names in order
func (s *Schema) ComponentNames() []string {
	names := make([]string, len(s.Components))
	for i, c := range s.Components {
		names[i] = c.Name
	}
	return names
}
