package migrate

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"
)

var fileNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// Validate checks migration file names, version uniqueness and goose
// annotations in source.
func Validate(source fs.FS) error {
	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	versions := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		match := fileNameRe.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("%s: name must look like YYYYMMDDHHMMSS_name.sql", name)
		}
		if prev, dup := versions[match[1]]; dup {
			return fmt.Errorf("%s: version %s already used by %s", name, match[1], prev)
		}
		versions[match[1]] = name

		body, err := fs.ReadFile(source, name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := checkAnnotations(body); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// ValidateDir runs Validate over the embedded set or a directory on disk.
func ValidateDir(dir string) error {
	source, err := Source(dir)
	if err != nil {
		return err
	}
	return Validate(source)
}

// checkAnnotations wants Up before Down and balanced statement blocks.
func checkAnnotations(body []byte) error {
	var (
		sawUp, sawDown bool
		open           int
	)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(text, "-- +goose ") {
			continue
		}
		switch strings.TrimPrefix(text, "-- +goose ") {
		case "Up":
			if sawUp || sawDown {
				return fmt.Errorf("line %d: unexpected Up", line)
			}
			sawUp = true
		case "Down":
			if !sawUp || sawDown {
				return fmt.Errorf("line %d: Down must follow a single Up", line)
			}
			if open != 0 {
				return fmt.Errorf("line %d: unclosed StatementBegin", line)
			}
			sawDown = true
		case "StatementBegin":
			if open != 0 {
				return fmt.Errorf("line %d: nested StatementBegin", line)
			}
			open++
		case "StatementEnd":
			if open == 0 {
				return fmt.Errorf("line %d: StatementEnd without StatementBegin", line)
			}
			open--
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	switch {
	case !sawUp:
		return fmt.Errorf(`missing "-- +goose Up"`)
	case !sawDown:
		return fmt.Errorf(`missing "-- +goose Down"`)
	case open != 0:
		return fmt.Errorf("unclosed StatementBegin")
	}
	return nil
}
