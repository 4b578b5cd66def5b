package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSchemaArchivePath returns the key of a dated copy of a pushed schema
// document.
func BuildSchemaArchivePath(name string, pushedAt time.Time) (string, error) {
	if err := validatePathComponent(name, "schema name"); err != nil {
		return "", err
	}
	ts := pushedAt.UTC()
	return path.Join(
		"schemas",
		name,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("schema-%s.json", ts.Format("20060102T150405Z")),
	), nil
}

// BuildTableFilePath returns the key of one parquet part of a table served
// by the DuckDB engine.
func BuildTableFilePath(tableName string, sequence int) (string, error) {
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	if sequence < 0 {
		return "", fmt.Errorf("sequence must be >= 0")
	}
	return path.Join(
		"tables",
		tableName,
		fmt.Sprintf("part-%05d.parquet", sequence),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
