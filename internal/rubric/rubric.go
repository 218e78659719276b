// Package rubric loads the NAPLAN marking criteria and their reference text.
package rubric

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/gema-writing-api/internal/utils"
)

const (
	// GenreNarrative is the default genre for projects without a recognised tag.
	GenreNarrative = "NARRATIVE"
	// GenrePersuasive selects the persuasive rubric.
	GenrePersuasive = "PERSUASIVE"

	// MaxReferenceRunes bounds each reference text embedded in a prompt.
	MaxReferenceRunes = 2000
)

// ErrUnknownGenre is returned by Load for genres missing from the configuration.
var ErrUnknownGenre = errors.New("unknown genre")

//go:embed rubrics.yaml
var defaultConfig []byte

//go:embed references
var defaultReferences embed.FS

// Criterion is a single scoring criterion of a rubric.
type Criterion struct {
	Key       string
	Name      string
	MaxPoints int
	Reference string
	// Missing reports that the reference file could not be read and
	// Reference holds a placeholder.
	Missing bool
}

// Rubric is the ordered criteria list for a genre.
type Rubric struct {
	Genre    string
	Label    string
	Criteria []Criterion
}

// MaxTotal sums the criterion maxima.
func (r Rubric) MaxTotal() int {
	total := 0
	for _, criterion := range r.Criteria {
		total += criterion.MaxPoints
	}
	return total
}

// Keys returns the criterion keys in rubric order.
func (r Rubric) Keys() []string {
	keys := make([]string, 0, len(r.Criteria))
	for _, criterion := range r.Criteria {
		keys = append(keys, criterion.Key)
	}
	return keys
}

type criterionConfig struct {
	Key  string `yaml:"key" validate:"required"`
	Name string `yaml:"name" validate:"required"`
	Max  int    `yaml:"max" validate:"gte=0"`
	File string `yaml:"file" validate:"required"`
}

type genreConfig struct {
	Genre        string            `yaml:"genre" validate:"required"`
	Label        string            `yaml:"label" validate:"required"`
	ReferenceDir string            `yaml:"reference_dir" validate:"required"`
	Criteria     []criterionConfig `yaml:"criteria" validate:"required,min=1,unique=Key,dive"`
}

type configDocument struct {
	Genres []genreConfig `yaml:"genres" validate:"required,min=1,unique=Genre,dive"`
}

// Provider serves rubrics from a parsed configuration and a reference file tree.
type Provider struct {
	genres   []genreConfig
	refs     fs.FS
	fallback string
}

// NewProvider parses config and resolves reference files against refs.
func NewProvider(config []byte, refs fs.FS, validate *validator.Validate) (*Provider, error) {
	if validate == nil {
		validate = validator.New()
	}

	var doc configDocument
	if err := yaml.Unmarshal(config, &doc); err != nil {
		return nil, fmt.Errorf("parse rubric config: %w", err)
	}
	for i := range doc.Genres {
		doc.Genres[i].Genre = strings.ToUpper(strings.TrimSpace(doc.Genres[i].Genre))
	}
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("validate rubric config: %w", err)
	}

	provider := &Provider{genres: doc.Genres, refs: refs, fallback: doc.Genres[0].Genre}
	for _, genre := range doc.Genres {
		if genre.Genre == GenreNarrative {
			provider.fallback = GenreNarrative
		}
	}
	return provider, nil
}

// NewDefaultProvider uses the embedded configuration. Reference files come from
// dir when set, otherwise from the embedded copies.
func NewDefaultProvider(dir string, validate *validator.Validate) (*Provider, error) {
	if dir != "" {
		return NewProvider(defaultConfig, os.DirFS(dir), validate)
	}

	refs, err := fs.Sub(defaultReferences, "references")
	if err != nil {
		return nil, fmt.Errorf("open embedded references: %w", err)
	}
	return NewProvider(defaultConfig, refs, validate)
}

// Genres lists the configured genres in configuration order.
func (p *Provider) Genres() []string {
	genres := make([]string, 0, len(p.genres))
	for _, genre := range p.genres {
		genres = append(genres, genre.Genre)
	}
	return genres
}

// Resolve maps a project genre tag to a configured genre. Unknown or empty
// tags resolve to the narrative genre and report fellBack.
func (p *Provider) Resolve(tag string) (genre string, fellBack bool) {
	normalized := strings.ToUpper(strings.TrimSpace(tag))
	for _, candidate := range p.genres {
		if candidate.Genre == normalized {
			return candidate.Genre, false
		}
	}
	return p.fallback, true
}

// Load returns the rubric for genre with reference text attached. A missing
// reference file yields a placeholder instead of an error.
func (p *Provider) Load(genre string) (Rubric, error) {
	normalized := strings.ToUpper(strings.TrimSpace(genre))

	for _, cfg := range p.genres {
		if cfg.Genre != normalized {
			continue
		}

		rubric := Rubric{Genre: cfg.Genre, Label: cfg.Label, Criteria: make([]Criterion, 0, len(cfg.Criteria))}
		for _, item := range cfg.Criteria {
			reference, missing := p.reference(cfg.ReferenceDir, item.File)
			rubric.Criteria = append(rubric.Criteria, Criterion{
				Key:       item.Key,
				Name:      item.Name,
				MaxPoints: item.Max,
				Reference: reference,
				Missing:   missing,
			})
		}
		return rubric, nil
	}

	return Rubric{}, fmt.Errorf("%w: %q", ErrUnknownGenre, genre)
}

func (p *Provider) reference(dir, file string) (string, bool) {
	if p.refs == nil {
		return fmt.Sprintf("(Missing: %s)", file), true
	}
	content, err := fs.ReadFile(p.refs, path.Join(dir, file))
	if err != nil {
		return fmt.Sprintf("(Missing: %s)", file), true
	}
	return utils.TruncateRunes(strings.TrimSpace(string(content)), MaxReferenceRunes), false
}
