package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from the process environment, applies defaults
// and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LookupFunc resolves one variable; it has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadFrom reads configuration through lookup. Every malformed variable is
// reported, not just the first.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	var errs []string
	fill(reflect.ValueOf(cfg).Elem(), lookup, &errs)
	if len(errs) > 0 {
		return nil, fmt.Errorf("config load:\n  - %s", strings.Join(errs, "\n  - "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// fill walks the section structs of v and sets every field carrying an env
// tag. A variable that is set but empty counts as unset.
func fill(v reflect.Value, lookup LookupFunc, errs *[]string) {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)
		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			fill(fieldVal, lookup, errs)
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}

		value, source := lookupValue(lookup, name, field.Tag.Get("envAlt"))
		if value == "" {
			if field.Tag.Get("required") == "true" {
				*errs = append(*errs, fmt.Sprintf("%s is required", name))
				continue
			}
			value, source = field.Tag.Get("default"), "default"
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			*errs = append(*errs, fmt.Sprintf("%s=%q (%s): %v", name, value, source, err))
		}
	}
}

// lookupValue returns the first non-empty value of name or alt and the
// variable it came from.
func lookupValue(lookup LookupFunc, name, alt string) (string, string) {
	if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), name
	}
	if alt != "" {
		if v, ok := lookup(alt); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), alt
		}
	}
	return "", ""
}

// setField parses value into field according to its kind.
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration")
		}
		if d < 0 {
			return fmt.Errorf("duration must not be negative")
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer")
		}
		field.SetInt(n)

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number")
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean")
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" {
		if c.Database.Host == "" {
			errs = append(errs, "POSTGRES_HOST is required when DATABASE_URL is not set")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("POSTGRES_PORT (%d) must be 1-65535", c.Database.Port))
		}
		if c.Database.Name == "" {
			errs = append(errs, "POSTGRES_DB is required when DATABASE_URL is not set")
		}
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.ConnectTimeout <= 0 {
		errs = append(errs, "DB_CONNECT_TIMEOUT must be positive")
	}

	// Source validation
	if !strings.Contains(c.Source.Dataset, "/") {
		errs = append(errs, fmt.Sprintf("KAGGLE_DATASET (%q) must be owner/name", c.Source.Dataset))
	}
	if c.Source.FileName == "" {
		errs = append(errs, "SOURCE_FILE is required")
	}
	if c.Source.MinFileSize < 0 {
		errs = append(errs, "SOURCE_MIN_FILE_SIZE must be non-negative")
	}
	if c.Source.MaxAge <= 0 {
		errs = append(errs, "SOURCE_MAX_AGE must be positive")
	}
	if c.Source.DownloadTimeout <= 0 {
		errs = append(errs, "SOURCE_DOWNLOAD_TIMEOUT must be positive")
	}

	if c.Paths.DataDir == "" {
		errs = append(errs, "DATA_DIR is required")
	}

	// Load validation
	if c.Load.BatchSize <= 0 {
		errs = append(errs, "LOAD_BATCH_SIZE must be positive")
	}
	if c.Load.Timeout <= 0 {
		errs = append(errs, "LOAD_TIMEOUT must be positive")
	}

	if c.Quality.Tolerance < 0 {
		errs = append(errs, "QUALITY_TOLERANCE must be non-negative")
	}
	if c.Quality.ReferenceYear < 1000 || c.Quality.ReferenceYear > 9999 {
		errs = append(errs, fmt.Sprintf("QUALITY_REFERENCE_YEAR (%d) must be a four-digit year", c.Quality.ReferenceYear))
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
