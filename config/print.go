package config

import (
	"fmt"
	"reflect"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Print logs the settings, one env tagged field per line. Secrets are masked.
func Print(logger log.Logger, config interface{}) {
	logger.Infof("%s:", reflect.TypeOf(config).Name())
	for _, line := range toLines(config) {
		logger.Printf("%s", line)
	}
}

func toLines(config interface{}) []string {
	v := reflect.ValueOf(config)
	t := reflect.TypeOf(config)

	var lines []string
	for i := 0; i < t.NumField(); i++ {
		key, ok := t.Field(i).Tag.Lookup(tagName)
		if !ok {
			continue
		}
		key, _ = parseTag(key)

		value := valueString(v.Field(i))
		if value == "" {
			value = "<unset>"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", key, value))
	}
	return lines
}

func valueString(v reflect.Value) string {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if stringer, ok := v.Interface().(fmt.Stringer); ok {
		return stringer.String()
	}
	if v.Kind() == reflect.Slice && v.Len() == 0 {
		return ""
	}
	return fmt.Sprintf("%v", v.Interface())
}
