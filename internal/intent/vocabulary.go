package intent

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Vocabulary maps canonical intent tags to the word and phrase sets the
// parser matches against. Any list left empty falls back to the default set,
// so an override file only needs to name the tags it changes.
type Vocabulary struct {
	Cancel  []string `yaml:"cancel"`
	Confirm []string `yaml:"confirm"`
	Deny    []string `yaml:"deny"`
	Movie   []string `yaml:"movie"`
	Series  []string `yaml:"series"`
	Fillers []string `yaml:"fillers"`
}

func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Cancel: []string{
			"cancel", "stop", "abort", "quit", "nevermind", "never mind", "forget it",
		},
		Confirm: []string{
			"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "confirm", "correct", "y",
		},
		Deny: []string{
			"no", "nope", "nah", "negative", "deny", "n",
		},
		Movie: []string{
			"movie", "film", "cinema",
		},
		Series: []string{
			"series", "show", "tv", "season", "seasons", "episode", "episodes",
		},
		Fillers: []string{
			"i want to watch", "i want to see", "i would like to watch", "i would like",
			"i wanna watch", "can you add", "can you get", "could you add", "please add",
			"search for", "look for", "looking for", "get me", "find me",
			"i want", "add", "request", "find", "download", "watch", "please", "the",
		},
	}
}

// LoadVocabulary reads a YAML override file and merges it over the default
// vocabulary. An empty path returns the defaults unchanged.
func LoadVocabulary(path string) (Vocabulary, error) {
	vocab := DefaultVocabulary()
	if path == "" {
		return vocab, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("reading vocabulary file: %w", err)
	}

	var override Vocabulary
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Vocabulary{}, fmt.Errorf("unmarshaling vocabulary yaml: %w", err)
	}

	vocab.merge(override)

	return vocab, nil
}

func (v *Vocabulary) merge(o Vocabulary) {
	if len(o.Cancel) > 0 {
		v.Cancel = o.Cancel
	}
	if len(o.Confirm) > 0 {
		v.Confirm = o.Confirm
	}
	if len(o.Deny) > 0 {
		v.Deny = o.Deny
	}
	if len(o.Movie) > 0 {
		v.Movie = o.Movie
	}
	if len(o.Series) > 0 {
		v.Series = o.Series
	}
	if len(o.Fillers) > 0 {
		v.Fillers = o.Fillers
	}
}
