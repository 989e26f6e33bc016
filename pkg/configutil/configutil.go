package configutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// LocalPath returns the path of the local override file for a config file,
// ex. "config.json5" -> "config.local.json5".
func LocalPath(name string) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s.local%s", strings.TrimSuffix(name, ext), ext)
}

func readJson5[T any](path string, out *T) (bool, error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(contents) == 0 {
		return false, nil
	}
	err = json5.Unmarshal(contents, out)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// ReadConfig reads a json5 configuration file, `name` should come with a file extension.
// Fields set in <name>.local.<ext> override the ones in <name>.<ext>. A zero value in the local
// file does not override a plain field, use a pointer field for knobs where 0, false or ""
// must win.
// It returns the files that were read and os.ErrNotExist if neither exists.
func ReadConfig[T any](name string) (T, []string, error) {
	var out T
	var read []string

	found, err := readJson5(name, &out)
	if err != nil {
		return out, nil, err
	}
	if found {
		read = append(read, name)
	}

	localPath := LocalPath(name)
	var override T
	found, err = readJson5(localPath, &override)
	if err != nil {
		return out, nil, err
	}
	if found {
		err = mergo.Merge(&out, override, mergo.WithOverride, mergo.WithoutDereference)
		if err != nil {
			return out, nil, err
		}
		read = append(read, localPath)
	}

	if len(read) == 0 {
		return out, nil, os.ErrNotExist
	}
	return out, read, nil
}
