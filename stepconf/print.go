package stepconf

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Print the name of the struct with Infof and list the fields with their values.
// Secrets are masked, unset values are shown as <unset>.
func Print(config interface{}, logger log.Logger) {
	logger.Infof("%s:", toTitle(reflect.TypeOf(config).Name()))
	for _, line := range fieldLines(config) {
		logger.Printf("%s", line)
	}
}

func fieldLines(config interface{}) []string {
	v := reflect.ValueOf(config)
	t := reflect.TypeOf(config)

	var lines []string
	for i := 0; i < t.NumField(); i++ {
		key, _ := parseTag(t.Field(i).Tag.Get("env"))
		if key == "" {
			key = t.Field(i).Name
		}

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

	if v.IsZero() {
		return ""
	}

	if stringer, ok := v.Interface().(fmt.Stringer); ok {
		return stringer.String()
	}
	if v.Kind() == reflect.Slice {
		return fmt.Sprintf("%v", v.Interface())
	}
	return fmt.Sprint(v.Interface())
}

func toTitle(s string) string {
	if s == "" {
		return "Config"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
