package util

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// BuildArchiveKey constructs a normalized storage key for an export archive.
func BuildArchiveKey(prefix, instance, scope string, when time.Time, extension string) string {
	parts := []string{}
	if prefix != "" {
		parts = append(parts, strings.Trim(prefix, "/"))
	}
	parts = append(parts, SafeInstance(instance))
	suffix := fmt.Sprintf("%s_%s", when.UTC().Format("20060102T150405Z"), scope)
	if extension != "" {
		suffix = suffix + "." + extension
	}
	parts = append(parts, suffix)
	return path.Join(parts...)
}

// BuildPrefix builds the prefix for listing archives of one instance.
func BuildPrefix(prefix, instance string) string {
	parts := []string{}
	if prefix != "" {
		parts = append(parts, strings.Trim(prefix, "/"))
	}
	if instance != "" {
		parts = append(parts, SafeInstance(instance))
	}
	return path.Join(parts...)
}

// SafeInstance folds a named-instance address (host\NAME) into a key segment.
func SafeInstance(instance string) string {
	return strings.NewReplacer("\\", "_", "/", "_", ":", "_").Replace(instance)
}
