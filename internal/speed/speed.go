// Package speed rewrites the prefill and decode rate assignments in the mock
// server's source or config file.
package speed

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// BackupSuffix is appended to the target path for the pristine copy.
const BackupSuffix = ".bak"

// Speeds holds the two rates written into the target file.
type Speeds struct {
	Prefill int `json:"prefill"`
	Decode  int `json:"decode"`
}

// Names are the assignment identifiers looked up in the target file.
type Names struct {
	Prefill string
	Decode  string
}

// PatternNotFoundError reports assignments that are absent from the target file.
type PatternNotFoundError struct {
	Path    string
	Missing []string
}

func (e *PatternNotFoundError) Error() string {
	return fmt.Sprintf("%s: no numeric assignment for %s", e.Path, strings.Join(e.Missing, ", "))
}

// File binds a target path to the assignment names it carries.
type File struct {
	Path  string
	Names Names
}

// Apply writes s into the file. Nothing is written unless both assignments are found.
func (f File) Apply(s Speeds) error {
	return Apply(f.Path, s, f.Names)
}

// Read parses the current values back from the file.
func (f File) Read() (Speeds, error) {
	return Read(f.Path, f.Names)
}

// assignmentPattern matches `NAME = 123` or `NAME: 123` at the start of a line.
func assignmentPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^([ \t]*` + regexp.QuoteMeta(name) + `[ \t]*[:=][ \t]*)(\d+)`)
}

// Apply replaces the numeric literal of the first prefill and decode
// assignment in path. Every other byte of the file is left as is.
func Apply(path string, s Speeds, names Names) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat speed target: %w", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read speed target: %w", err)
	}

	updated, err := rewrite(content, s, names)
	if err != nil {
		var pnf *PatternNotFoundError
		if errors.As(err, &pnf) {
			pnf.Path = path
		}
		return err
	}
	if string(updated) == string(content) {
		return nil
	}

	if err := os.WriteFile(path, updated, info.Mode().Perm()); err != nil {
		return fmt.Errorf("write speed target: %w", err)
	}
	return nil
}

func rewrite(content []byte, s Speeds, names Names) ([]byte, error) {
	type edit struct {
		start, end int
		value      string
	}

	var edits []edit
	var missing []string
	for _, a := range []struct {
		name  string
		value int
	}{{names.Prefill, s.Prefill}, {names.Decode, s.Decode}} {
		loc := assignmentPattern(a.name).FindSubmatchIndex(content)
		if loc == nil {
			missing = append(missing, a.name)
			continue
		}
		edits = append(edits, edit{start: loc[4], end: loc[5], value: strconv.Itoa(a.value)})
	}
	if len(missing) > 0 {
		return nil, &PatternNotFoundError{Missing: missing}
	}

	if edits[0].start > edits[1].start {
		edits[0], edits[1] = edits[1], edits[0]
	}

	out := make([]byte, 0, len(content)+16)
	pos := 0
	for _, e := range edits {
		out = append(out, content[pos:e.start]...)
		out = append(out, e.value...)
		pos = e.end
	}
	out = append(out, content[pos:]...)
	return out, nil
}

// Read returns the values of the prefill and decode assignments in path.
func Read(path string, names Names) (Speeds, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Speeds{}, fmt.Errorf("read speed target: %w", err)
	}

	var values [2]int
	var missing []string
	for i, name := range []string{names.Prefill, names.Decode} {
		m := assignmentPattern(name).FindSubmatch(content)
		if m == nil {
			missing = append(missing, name)
			continue
		}
		v, err := strconv.Atoi(string(m[2]))
		if err != nil {
			return Speeds{}, fmt.Errorf("parse %s: %w", name, err)
		}
		values[i] = v
	}
	if len(missing) > 0 {
		return Speeds{}, &PatternNotFoundError{Path: path, Missing: missing}
	}
	return Speeds{Prefill: values[0], Decode: values[1]}, nil
}

// Backup copies path to path+BackupSuffix. An existing backup is kept, since
// it still holds the content from before an interrupted run.
func Backup(path string) (string, error) {
	dst := path + BackupSuffix
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("check backup: %w", err)
	}

	if err := copyFile(path, dst); err != nil {
		return "", fmt.Errorf("backup %s: %w", path, err)
	}
	return dst, nil
}

// Restore moves the backup of path back into place. It reports false when
// no backup exists.
func Restore(path string) (bool, error) {
	src := path + BackupSuffix
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("check backup: %w", err)
	}
	if err := os.Rename(src, path); err != nil {
		return false, fmt.Errorf("restore %s: %w", path, err)
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
