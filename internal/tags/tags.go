// Package tags assigns semantic content tags (nuts, chocolate, fruit, ...)
// to a flavor from its name and description.
package tags

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/custard-cli/internal/model"
)

// Well-known tags.
const (
	Nuts      = "nuts"
	Peanuts   = "peanuts"
	Gluten    = "gluten"
	Alcohol   = "alcohol"
	Chocolate = "chocolate"
	Caramel   = "caramel"
	Fruit     = "fruit"
	Mint      = "mint"
	Coffee    = "coffee"
	Seasonal  = "seasonal"
)

// HardExclude is the set of tags that remove a candidate entirely when the
// caller excludes them. Excluding any other tag is accepted but has no effect.
var HardExclude = map[string]bool{
	Nuts:    true,
	Peanuts: true,
	Gluten:  true,
	Alcohol: true,
}

// IsHardExclude reports whether tag is in the hard-exclude set.
func IsHardExclude(tag string) bool {
	return HardExclude[strings.ToLower(strings.TrimSpace(tag))]
}

// Classifier returns the content tags for a flavor.
type Classifier interface {
	Classify(flavor, description string) []string
}

// Rules maps a tag to the keywords that imply it.
type Rules map[string][]string

// DefaultRules is the built-in keyword table.
var DefaultRules = Rules{
	Nuts: {
		"pecan", "cashew", "almond", "walnut", "pistachio", "hazelnut",
		"macadamia", "praline", "butter pecan", "nut",
	},
	Peanuts: {"peanut", "reeses", "butterfinger", "snickers", "nutter butter"},
	Gluten: {
		"cookie", "brownie", "cake", "oreo", "pie", "cheesecake", "crust",
		"waffle", "cone", "dough", "graham", "pretzel",
	},
	Alcohol:   {"bourbon", "rum", "kahlua", "amaretto", "brandy", "baileys", "whiskey"},
	Chocolate: {"chocolate", "fudge", "cocoa", "brownie", "oreo", "turtle", "mocha"},
	Caramel:   {"caramel", "butterscotch", "toffee", "dulce", "turtle"},
	Fruit: {
		"strawberry", "raspberry", "blueberry", "cherry", "peach", "banana",
		"lemon", "key lime", "mango", "blackberry", "apple", "cranberry",
	},
	Mint:     {"mint", "peppermint", "andes"},
	Coffee:   {"coffee", "espresso", "mocha", "cappuccino"},
	Seasonal: {"pumpkin", "eggnog", "peppermint", "gingerbread", "apple pie"},
}

// KeywordClassifier matches whole-word keywords against the normalized
// flavor name and description.
type KeywordClassifier struct {
	rules Rules
}

// NewKeywordClassifier creates a classifier from rules. Nil rules fall back
// to DefaultRules.
func NewKeywordClassifier(rules Rules) *KeywordClassifier {
	if rules == nil {
		rules = DefaultRules
	}
	norm := make(Rules, len(rules))
	for tag, kws := range rules {
		tag = strings.ToLower(strings.TrimSpace(tag))
		for _, kw := range kws {
			if k := model.NormalizeFlavor(kw); k != "" {
				norm[tag] = append(norm[tag], k)
			}
		}
	}
	return &KeywordClassifier{rules: norm}
}

// Classify returns the sorted, de-duplicated tags for a flavor.
func (c *KeywordClassifier) Classify(flavor, description string) []string {
	text := " " + model.NormalizeFlavor(flavor+" "+description) + " "
	var out []string
	for tag, kws := range c.rules {
		for _, kw := range kws {
			if matchWord(text, kw) {
				out = append(out, tag)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// matchWord matches kw on word boundaries, allowing a trailing plural "s".
func matchWord(text, kw string) bool {
	return strings.Contains(text, " "+kw+" ") || strings.Contains(text, " "+kw+"s ")
}

// LoadRules reads a YAML rules file of the form
//
//	tags:
//	  nuts: [pecan, cashew]
//
// Tags present in the file replace the matching default entry; the rest of
// DefaultRules is kept.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tags: read rules %s", path)
	}
	var wrapper struct {
		Tags Rules `yaml:"tags"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "tags: parse rules")
	}

	merged := make(Rules, len(DefaultRules)+len(wrapper.Tags))
	for tag, kws := range DefaultRules {
		merged[tag] = kws
	}
	for tag, kws := range wrapper.Tags {
		merged[tag] = kws
	}
	return merged, nil
}
