package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// EnvGetter is satisfied by env.Repository.
type EnvGetter interface {
	Get(key string) string
}

// ErrNotStructPtr indicates a type is not a pointer to a struct.
var ErrNotStructPtr = errors.New("must be a pointer to a struct")

// ErrRequired indicates a required variable is not present.
var ErrRequired = errors.New("required variable is not present")

// ErrInvalidBool ...
var ErrInvalidBool = errors.New("value must be 'yes', 'no', 'true' or 'false'")

const (
	tagName        = "env"
	optionRequired = "required"
	optionFile     = "file"
	optionDir      = "dir"
	listSeparator  = "|"
)

// parse populates a struct with the values of the variables named in its env
// tags. Empty values leave the field untouched so callers can preset defaults.
func parse(conf interface{}, envs EnvGetter) error {
	c := reflect.ValueOf(conf)
	if c.Kind() != reflect.Ptr || c.IsNil() {
		return ErrNotStructPtr
	}
	c = c.Elem()
	if c.Kind() != reflect.Struct {
		return ErrNotStructPtr
	}
	t := c.Type()

	var errs []string
	for i := 0; i < c.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup(tagName)
		if !ok {
			continue
		}
		key, constraint := parseTag(tag)
		value := envs.Get(key)

		if err := validate(value, constraint); err != nil {
			errs = append(errs, fmt.Sprintf("- %s: %s", key, err))
			continue
		}
		if value == "" {
			continue
		}
		if err := setField(c.Field(i), value); err != nil {
			errs = append(errs, fmt.Sprintf("- %s: %s", key, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to parse config:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func parseTag(tag string) (string, string) {
	if key, constraint, ok := strings.Cut(tag, ","); ok {
		return key, constraint
	}
	return tag, ""
}

func setField(field reflect.Value, value string) error {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		field = field.Elem()
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("can't convert %s to %s", value, field.Kind())
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("can't convert %s to %s", value, field.Kind())
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		var items []string
		for _, item := range strings.Split(value, listSeparator) {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items).Convert(field.Type()))
	default:
		return fmt.Errorf("type is not supported (%s)", field.Kind())
	}
	return nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "yes", "true":
		return true, nil
	case "no", "false":
		return false, nil
	}
	return false, ErrInvalidBool
}

func validate(value, constraint string) error {
	switch {
	case constraint == "":
		return nil
	case constraint == optionRequired:
		if value == "" {
			return ErrRequired
		}
	case value == "":
		return nil
	case constraint == optionFile, constraint == optionDir:
		return checkPath(value, constraint == optionDir)
	case strings.HasPrefix(constraint, "opt[") && strings.HasSuffix(constraint, "]"):
		return validateOption(value, constraint)
	default:
		return fmt.Errorf("invalid constraint (%s)", constraint)
	}
	return nil
}

func checkPath(path string, dir bool) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if dir && !info.IsDir() {
		return fmt.Errorf("not a directory: %s", path)
	}
	if !dir && info.IsDir() {
		return fmt.Errorf("not a file: %s", path)
	}
	return nil
}

func validateOption(value, constraint string) error {
	options := strings.Split(strings.TrimSuffix(strings.TrimPrefix(constraint, "opt["), "]"), ",")
	for _, option := range options {
		if option == value {
			return nil
		}
	}
	return fmt.Errorf("value not in value options (%s)", strings.Join(options, ", "))
}
