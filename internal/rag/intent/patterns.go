package intent

import (
	"embed"
	"errors"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/taskbridge-backend/internal/platform/logger"
)

const patternsEnv = "INTENT_PATTERNS_YAML"

//go:embed patterns.yaml
var patternsFS embed.FS

type yamlPatternSpec struct {
	Version      int               `yaml:"version"`
	QuickIntents []yamlQuickIntent `yaml:"quick_intents"`
	CrudVerbs    []string          `yaml:"crud_verbs"`
}

type yamlQuickIntent struct {
	Name      string   `yaml:"name"`
	Patterns  []string `yaml:"patterns"`
	Responses []string `yaml:"responses"`
}

type quickIntentRule struct {
	name      string
	patterns  []*regexp.Regexp
	responses []string
}

type patternRuntime struct {
	rules     []quickIntentRule
	crudVerbs []string
}

// fallback rules used when the YAML is missing or invalid.
var fallbackRuntime = patternRuntime{
	rules: []quickIntentRule{
		{
			name:      QuickGreeting,
			patterns:  []*regexp.Regexp{regexp.MustCompile(`(?i)^\s*(hi|hello|hey)[!. ]*$`)},
			responses: []string{"Hello! How can I help you with your tasks today?"},
		},
		{
			name:      QuickGoodbye,
			patterns:  []*regexp.Regexp{regexp.MustCompile(`(?i)^\s*(bye|goodbye)[!. ]*$`)},
			responses: []string{"Goodbye! Come back whenever you need an update."},
		},
		{
			name:      QuickThank,
			patterns:  []*regexp.Regexp{regexp.MustCompile(`(?i)^\s*(thanks|thank you)[!. ]*$`)},
			responses: []string{"You're welcome!"},
		},
	},
	crudVerbs: []string{"create", "add", "update", "change", "assign", "mark", "set", "delete", "remove"},
}

var (
	patternsOnce  sync.Once
	patternsCache *patternRuntime
	patternsErr   error
)

func currentPatterns(log *logger.Logger) *patternRuntime {
	patternsOnce.Do(func() {
		patternsCache, patternsErr = loadPatterns()
	})
	if patternsErr != nil {
		if log != nil {
			log.Warn("intent: patterns load failed; using fallback", "error", patternsErr)
		}
		return &fallbackRuntime
	}
	return patternsCache
}

func loadPatterns() (*patternRuntime, error) {
	data, err := readPatterns()
	if err != nil {
		return nil, err
	}

	var spec yamlPatternSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if len(spec.QuickIntents) == 0 {
		return nil, errors.New("patterns yaml has no quick_intents")
	}

	rt := &patternRuntime{crudVerbs: spec.CrudVerbs}
	for _, qi := range spec.QuickIntents {
		rule := quickIntentRule{name: strings.TrimSpace(qi.Name), responses: qi.Responses}
		if rule.name == "" {
			continue
		}
		for _, raw := range qi.Patterns {
			re, err := regexp.Compile(raw)
			if err != nil {
				return nil, err
			}
			rule.patterns = append(rule.patterns, re)
		}
		if len(rule.patterns) > 0 {
			rt.rules = append(rt.rules, rule)
		}
	}
	if len(rt.rules) == 0 {
		return nil, errors.New("patterns yaml compiled to no usable rules")
	}
	if len(rt.crudVerbs) == 0 {
		rt.crudVerbs = fallbackRuntime.crudVerbs
	}
	return rt, nil
}

func readPatterns() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(patternsEnv)); path != "" {
		return os.ReadFile(path)
	}
	return patternsFS.ReadFile("patterns.yaml")
}
