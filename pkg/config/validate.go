package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their TOML names so errors read as config
// keys, e.g. "storage.provider".
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field values and the cross-section requirements that
// struct tags cannot express.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, e := range verrs {
			problems = append(problems, formatFieldError(e))
		}
	}

	switch c.Storage.Provider {
	case "postgres", "libsql", "remote":
		if c.Storage.Target == "" {
			problems = append(problems, fmt.Sprintf("storage.target is required for provider %s", c.Storage.Provider))
		}
	}

	if c.VectorStore.Provider != "" {
		if c.Embedding.Provider == "" {
			problems = append(problems, "embedding.provider is required when vector_store.provider is set")
		}
		if c.Embedding.Dimensions == 0 {
			problems = append(problems, "embedding.dimensions is required when vector_store.provider is set")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func formatFieldError(e validator.FieldError) string {
	key := strings.TrimPrefix(e.Namespace(), "Config.")

	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", key)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", key, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a URL", key)
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port", key)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", key, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", key, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", key)
	}
}
