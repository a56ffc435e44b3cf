package config

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// CheckPath reports whether path names a setting of Config by its yaml
// keys. A path may stop at a section or at a value but not go past a
// value.
func CheckPath(path []string) error {
	t := reflect.TypeOf(Config{})
	for i, key := range path {
		if t.Kind() != reflect.Struct {
			return &ConfigError{Message: fmt.Sprintf("%s is a value, not a section", strings.Join(path[:i], "."))}
		}
		field, ok := yamlField(t, key)
		if !ok {
			return &ConfigError{Message: fmt.Sprintf("unknown config key %q (known keys: %s)",
				strings.Join(path[:i+1], "."), strings.Join(yamlKeys(t), ", "))}
		}
		t = field.Type
	}
	return nil
}

// Decode builds a Config from a raw settings map the way Load does, without
// environment overrides.
func Decode(raw map[string]any) (Config, error) {
	cfg := Defaults()
	data, err := yaml.Marshal(raw)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "invalid config: " + err.Error()}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// IssuesUnder splits issues into those at or below path and the rest.
func IssuesUnder(issues []ValidationIssue, path string) (under, other []ValidationIssue) {
	for _, issue := range issues {
		if issue.Path == path || strings.HasPrefix(issue.Path, path+".") || strings.HasPrefix(issue.Path, path+"[") {
			under = append(under, issue)
		} else {
			other = append(other, issue)
		}
	}
	return under, other
}

func yamlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if name == "" {
		return strings.ToLower(f.Name)
	}
	return name
}

func yamlField(t reflect.Type, key string) (reflect.StructField, bool) {
	for i := range t.NumField() {
		f := t.Field(i)
		if f.IsExported() && yamlName(f) == key {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func yamlKeys(t reflect.Type) []string {
	var keys []string
	for i := range t.NumField() {
		if f := t.Field(i); f.IsExported() && yamlName(f) != "-" {
			keys = append(keys, yamlName(f))
		}
	}
	slices.Sort(keys)
	return keys
}
