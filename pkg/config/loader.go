package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadConfig reads configDir/base.yaml and merges configDir/<env>.yaml over
// it. ${VAR} placeholders resolve from configDir/secrets.env first, then
// from the process environment; unresolved ones become empty strings.
func LoadConfig(env string, configDir string) (map[string]interface{}, error) {
	if configDir == "" {
		configDir = "config"
	}

	merged, err := loadYAMLFile(filepath.Join(configDir, "base.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load base.yaml: %w", err)
	}

	if env != "" && env != "base" {
		overlay, err := loadYAMLFile(filepath.Join(configDir, env+".yaml"))
		switch {
		case err == nil:
			merged = mergeMaps(merged, overlay)
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to load %s.yaml: %w", env, err)
		}
	}

	secrets := map[string]string{}
	if s, err := loadEnvFile(filepath.Join(configDir, "secrets.env")); err == nil {
		secrets = s
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load secrets.env: %w", err)
	}

	lookup := func(key string) string {
		if v, ok := secrets[key]; ok {
			return v
		}
		return os.Getenv(key)
	}
	return substitute(merged, lookup).(map[string]interface{}), nil
}

func loadYAMLFile(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile parses KEY=VALUE lines; blank lines and # comments are
// skipped and surrounding quotes dropped.
func loadEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	env := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"`)
		value = strings.Trim(value, `'`)
		env[strings.TrimSpace(key)] = value
	}
	return env, nil
}

// mergeMaps returns dst overlaid by src, merging nested maps.
func mergeMaps(dst, src map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(dst)+len(src))
	for k, v := range dst {
		result[k] = v
	}
	for k, v := range src {
		dstMap, dstOK := result[k].(map[string]interface{})
		srcMap, srcOK := v.(map[string]interface{})
		if dstOK && srcOK {
			result[k] = mergeMaps(dstMap, srcMap)
			continue
		}
		result[k] = v
	}
	return result
}

// substitute resolves placeholders in every string of v, descending into
// maps and lists.
func substitute(v interface{}, lookup func(string) string) interface{} {
	switch val := v.(type) {
	case string:
		return placeholder.ReplaceAllStringFunc(val, func(m string) string {
			return lookup(placeholder.FindStringSubmatch(m)[1])
		})
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = substitute(item, lookup)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = substitute(item, lookup)
		}
		return out
	default:
		return v
	}
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv is CONFIG_ENV, defaulting to "local".
func GetConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}
