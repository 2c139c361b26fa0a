package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// ErrInvalidConfig is returned when the provided config is not a pointer to a struct
// that embeds EnvConfig.
var ErrInvalidConfig = errors.New("config must be a pointer to a struct embedding EnvConfig")

// EnvConfig is a base type that must be embedded in configuration structs
// to enable environment variable parsing.
type EnvConfig struct {
	namespace string
}

// Namespace returns the namespace the config was parsed with.
func (c EnvConfig) Namespace() string {
	return c.namespace
}

//nolint:varnamelen
func getEnvConfig(cfg any) (*EnvConfig, error) {
	v := reflect.ValueOf(cfg)

	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil, ErrInvalidConfig
	}

	v = v.Elem()
	t := v.Type()

	for i := range t.NumField() {
		field := t.Field(i)
		//nolint:exhaustruct,forcetypeassert
		if field.Anonymous && field.Type == reflect.TypeOf(EnvConfig{}) {
			return v.Field(i).Addr().Interface().(*EnvConfig), nil
		}
	}

	return nil, ErrInvalidConfig
}

// Parse loads configuration values from environment variables into the provided struct.
// The struct must embed EnvConfig and use `env`, `envDefault` and `envPrefix` tags.
//
// If a .env file exists in the working directory it is loaded first; variables
// already present in the process environment take precedence over it.
//
// The namespace is an underscore separated prefix. A variable is looked up under
// every level of the namespace, the most specific one winning: with namespace
// "APP_SVC", APP_SVC_X overrides APP_X which overrides X.
func Parse(ctx context.Context, cfg any, namespace string) error {
	envConfig, err := getEnvConfig(cfg)
	if err != nil {
		return fmt.Errorf("get env config: %w", err)
	}

	if err := loadDotEnv(".env"); err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}

	envConfig.namespace = namespace

	//nolint:exhaustruct
	if err := env.Parse(cfg, env.Options{
		Environment: namespacedEnvironment(namespace, os.Environ()),
	}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("stat: %w", err)
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	return nil
}

// namespacedEnvironment flattens environ into a map keyed by the variable
// name with the namespace stripped.
func namespacedEnvironment(namespace string, environ []string) map[string]string {
	vars := make(map[string]string, len(environ))

	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	if namespace == "" {
		return vars
	}

	result := make(map[string]string, len(vars))
	for k, v := range vars {
		result[k] = v
	}

	nsParts := strings.Split(namespace, "_")

	// least specific first, so deeper namespaces overwrite
	for i := 1; i <= len(nsParts); i++ {
		prefix := strings.Join(nsParts[:i], "_") + "_"

		for k, v := range vars {
			if name, ok := strings.CutPrefix(k, prefix); ok && name != "" {
				result[name] = v
			}
		}
	}

	return result
}
