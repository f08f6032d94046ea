package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"
)

// Store is a sectioned configuration file, rewritten in place through
// a create-exclusive lock file and an atomic rename, the same
// discipline objstore and refstore use for their own files. Unlike a
// generic INI library, Set/Unset locate and replace
// only the matched key's or section's own byte span, leaving the rest
// of the file, including comments and formatting, untouched.
type Store struct {
	path string
}

// Open returns a Store backed by path. The file need not exist yet:
// reads see an empty configuration, and the first Set creates it.
func Open(path string) *Store {
	return &Store{path: path}
}

func (s *Store) read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Get returns the last matching value for (section, subsection, key),
// which is git's own precedence rule for a repeated key.
func (s *Store) Get(sectionName, subsection, key string) (string, error) {
	data, err := s.read()
	if err != nil {
		return "", err
	}
	_, pairs, err := parse(data)
	if err != nil {
		return "", err
	}
	sectionName = strings.ToLower(sectionName)
	key = strings.ToLower(key)
	found := false
	var value string
	for _, p := range pairs {
		if p.section == sectionName && p.subsection == subsection && p.key == key {
			value = p.value
			found = true
		}
	}
	if !found {
		return "", errorf("Store.Get", "%w: %s.%s", ErrNoKey, sectionHeaderName(sectionName, subsection), key)
	}
	return value, nil
}

// GetBool returns a config value coerced to bool: true/false in any
// case, or any integer (nonzero is true), matching the bare-key
// (no "=") form parse.go already defaults to "true".
func (s *Store) GetBool(sectionName, subsection, key string) (bool, error) {
	raw, err := s.Get(sectionName, subsection, key)
	if err != nil {
		return false, err
	}
	return parseBool(sectionName, subsection, key, raw)
}

// GetInt returns a config value parsed as a signed integer.
func (s *Store) GetInt(sectionName, subsection, key string) (int64, error) {
	raw, err := s.Get(sectionName, subsection, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, errorf("Store.GetInt", "%s.%s: not an integer: %q", sectionHeaderName(sectionName, subsection), key, raw)
	}
	return n, nil
}

func parseBool(sectionName, subsection, key, raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return false, errorf("Store.GetBool", "%s.%s: not a bool: %q", sectionHeaderName(sectionName, subsection), key, raw)
	}
	return n != 0, nil
}

// GetAll returns every value for (section, subsection, key) in file order.
func (s *Store) GetAll(sectionName, subsection, key string) ([]string, error) {
	data, err := s.read()
	if err != nil {
		return nil, err
	}
	_, pairs, err := parse(data)
	if err != nil {
		return nil, err
	}
	sectionName = strings.ToLower(sectionName)
	key = strings.ToLower(key)
	var values []string
	for _, p := range pairs {
		if p.section == sectionName && p.subsection == subsection && p.key == key {
			values = append(values, p.value)
		}
	}
	return values, nil
}

// SetOption scopes which occurrences Set/Unset touch and what they do
// when more than one matches.
type SetOption func(*setOptions)

type setOptions struct {
	valueRegex *regexp.Regexp
	negate     bool
	replaceAll bool
	badPattern string
}

// WithValueRegex restricts Set/Unset to occurrences whose current
// value matches pattern; a leading '!' negates the match.
func WithValueRegex(pattern string) SetOption {
	return func(o *setOptions) {
		if strings.HasPrefix(pattern, "!") {
			o.negate = true
			pattern = pattern[1:]
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			// Recorded here and surfaced by resolveSetOptions,
			// since an Option func cannot itself return an error.
			o.valueRegex = nil
			o.negate = false
			o.badPattern = pattern
			return
		}
		o.valueRegex = re
	}
}

// WithReplaceAll allows Set/Unset to edit or delete every matching
// occurrence instead of refusing when more than one value matches.
func WithReplaceAll() SetOption {
	return func(o *setOptions) { o.replaceAll = true }
}

func resolveSetOptions(opts []SetOption) (setOptions, error) {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.badPattern != "" {
		return o, errorf("resolveSetOptions", "%w: %q", ErrBadValueRegex, o.badPattern)
	}
	return o, nil
}

// matchingPairs returns, in file order, every pair for (section,
// subsection, key) whose value also satisfies o's value_regex scoping
// (if any).
func matchingPairs(pairs []pair, sectionName, subsection, key string, o setOptions) []pair {
	var matches []pair
	for _, p := range pairs {
		if p.section != sectionName || p.subsection != subsection || p.key != key {
			continue
		}
		if o.valueRegex != nil {
			matched := o.valueRegex.MatchString(p.value)
			if o.negate {
				matched = !matched
			}
			if !matched {
				continue
			}
		}
		matches = append(matches, p)
	}
	return matches
}

// spliceMatches rewrites data so that every span in matches is
// removed, and, if newLine is non-nil, newLine is written once at the
// position of the last match: several matches collapse into the
// single new occurrence, or into nothing when deleting.
func spliceMatches(data []byte, matches []pair, newLine []byte) []byte {
	out := append([]byte(nil), data[:matches[0].start]...)
	for i := 1; i < len(matches); i++ {
		out = append(out, data[matches[i-1].end:matches[i].start]...)
	}
	if newLine != nil {
		out = append(out, newLine...)
	}
	out = append(out, data[matches[len(matches)-1].end:]...)
	return out
}

// Set replaces every occurrence of (section, subsection, key) matched
// per opts with value, or appends a new "key = value" line to the
// section's body if nothing matches, creating the section (and the
// file) if necessary. With no options, exactly one occurrence may
// match; WithReplaceAll is required if more than one value is
// expected to match, otherwise Set fails with ErrAmbiguousKey.
func (s *Store) Set(sectionName, subsection, key, value string, opts ...SetOption) error {
	sectionName = strings.ToLower(sectionName)
	key = strings.ToLower(key)
	o, err := resolveSetOptions(opts)
	if err != nil {
		return err
	}
	return s.rewrite(func(data []byte) ([]byte, error) {
		sections, pairs, err := parse(data)
		if err != nil {
			return nil, err
		}
		line := []byte(fmt.Sprintf("\t%s = %s\n", key, encodeValue(value)))

		matches := matchingPairs(pairs, sectionName, subsection, key, o)
		if len(matches) > 1 && !o.replaceAll {
			return nil, errorf("Store.Set", "%w: %s.%s", ErrAmbiguousKey, sectionHeaderName(sectionName, subsection), key)
		}
		if len(matches) > 0 {
			return spliceMatches(data, matches, line), nil
		}
		for i := range sections {
			sec := sections[i]
			if sec.name == sectionName && sec.subsection == subsection {
				out := append([]byte(nil), data[:sec.bodyEnd]...)
				out = append(out, line...)
				out = append(out, data[sec.bodyEnd:]...)
				return out, nil
			}
		}
		out := append([]byte(nil), data...)
		if len(out) > 0 && out[len(out)-1] != '\n' {
			out = append(out, '\n')
		}
		out = append(out, []byte(sectionHeaderLine(sectionName, subsection))...)
		out = append(out, line...)
		return out, nil
	})
}

// Unset removes every occurrence of (section, subsection, key)
// matched per opts, with the same value-regex/replace-all scoping Set
// honors. Returns ErrNoKey if nothing matches, or ErrAmbiguousKey if
// more than one value matches and WithReplaceAll was not given.
func (s *Store) Unset(sectionName, subsection, key string, opts ...SetOption) error {
	sectionName = strings.ToLower(sectionName)
	key = strings.ToLower(key)
	o, err := resolveSetOptions(opts)
	if err != nil {
		return err
	}
	return s.rewrite(func(data []byte) ([]byte, error) {
		_, pairs, err := parse(data)
		if err != nil {
			return nil, err
		}
		matches := matchingPairs(pairs, sectionName, subsection, key, o)
		if len(matches) == 0 {
			return nil, errorf("Store.Unset", "%w: %s.%s", ErrNoKey, sectionHeaderName(sectionName, subsection), key)
		}
		if len(matches) > 1 && !o.replaceAll {
			return nil, errorf("Store.Unset", "%w: %s.%s", ErrAmbiguousKey, sectionHeaderName(sectionName, subsection), key)
		}
		return spliceMatches(data, matches, nil), nil
	})
}

// RemoveSection deletes the whole [section "subsection"] block,
// header and body. Returns ErrNoSection if it is not present.
func (s *Store) RemoveSection(sectionName, subsection string) error {
	sectionName = strings.ToLower(sectionName)
	return s.rewrite(func(data []byte) ([]byte, error) {
		sections, _, err := parse(data)
		if err != nil {
			return nil, err
		}
		for _, sec := range sections {
			if sec.name == sectionName && sec.subsection == subsection {
				out := append([]byte(nil), data[:sec.headerStart]...)
				out = append(out, data[sec.bodyEnd:]...)
				return out, nil
			}
		}
		return nil, errorf("Store.RemoveSection", "%w: %s", ErrNoSection, sectionHeaderName(sectionName, subsection))
	})
}

// rewrite reads the current file, applies transform to produce the
// new contents, and installs them through a lock-file-and-rename,
// failing with an error if another writer holds the lock concurrently.
func (s *Store) rewrite(transform func([]byte) ([]byte, error)) error {
	data, err := s.read()
	if err != nil {
		return err
	}
	newData, err := transform(data)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return err
	}
	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666)
	if err != nil {
		if os.IsExist(err) {
			return errorf("Store.rewrite", "config file locked: %s", s.path)
		}
		return err
	}
	committed := false
	defer func() {
		if !committed {
			lockFile.Close()
			os.Remove(lockPath)
		}
	}()
	if _, err := lockFile.Write(newData); err != nil {
		return err
	}
	if err := lockFile.Close(); err != nil {
		return err
	}
	if err := syscall.Rename(lockPath, s.path); err != nil {
		return err
	}
	committed = true
	return nil
}

func sectionHeaderName(name, subsection string) string {
	if subsection == "" {
		return name
	}
	return fmt.Sprintf("%s.%s", name, subsection)
}

func sectionHeaderLine(name, subsection string) string {
	if subsection == "" {
		return fmt.Sprintf("[%s]\n", name)
	}
	return fmt.Sprintf("[%s \"%s\"]\n", name, escapeSubsection(subsection))
}
