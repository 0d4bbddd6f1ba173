// Package config resolves server settings from a YAML config file, the
// environment, and the client's initialization options, in that order of
// increasing precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings are the resolved server settings. Toggle fields are pointers
// so an unset layer does not override a lower one; use the *Enabled
// accessors, which default to true.
type Settings struct {
	VCardDir             string `yaml:"vcard_dir" json:"vcard_dir"`
	ContactListFile      string `yaml:"contact_list_file" json:"contact_list_file"`
	EnableCompletion     *bool  `yaml:"enable_completion" json:"enable_completion"`
	EnableHover          *bool  `yaml:"enable_hover" json:"enable_hover"`
	EnableCodeActions    *bool  `yaml:"enable_code_actions" json:"enable_code_actions"`
	EnableGotoDefinition *bool  `yaml:"enable_goto_definition" json:"enable_goto_definition"`
	CompletionLimit      int    `yaml:"completion_limit" json:"completion_limit"`
	Watch                *bool  `yaml:"watch" json:"watch"`
}

// CompletionEnabled reports whether completion is served.
func (s Settings) CompletionEnabled() bool { return s.EnableCompletion == nil || *s.EnableCompletion }

// HoverEnabled reports whether hover is served.
func (s Settings) HoverEnabled() bool { return s.EnableHover == nil || *s.EnableHover }

// CodeActionsEnabled reports whether code actions and the create-contact
// command are served.
func (s Settings) CodeActionsEnabled() bool { return s.EnableCodeActions == nil || *s.EnableCodeActions }

// GotoDefinitionEnabled reports whether go-to-definition is served.
func (s Settings) GotoDefinitionEnabled() bool {
	return s.EnableGotoDefinition == nil || *s.EnableGotoDefinition
}

// WatchEnabled reports whether the contact directory watcher runs.
func (s Settings) WatchEnabled() bool { return s.Watch == nil || *s.Watch }

// Merge overlays non-empty fields of over onto s and returns the result.
func (s Settings) Merge(over Settings) Settings {
	if over.VCardDir != "" {
		s.VCardDir = over.VCardDir
	}
	if over.ContactListFile != "" {
		s.ContactListFile = over.ContactListFile
	}
	if over.EnableCompletion != nil {
		s.EnableCompletion = over.EnableCompletion
	}
	if over.EnableHover != nil {
		s.EnableHover = over.EnableHover
	}
	if over.EnableCodeActions != nil {
		s.EnableCodeActions = over.EnableCodeActions
	}
	if over.EnableGotoDefinition != nil {
		s.EnableGotoDefinition = over.EnableGotoDefinition
	}
	if over.CompletionLimit != 0 {
		s.CompletionLimit = over.CompletionLimit
	}
	if over.Watch != nil {
		s.Watch = over.Watch
	}
	return s
}

// LoadFile reads settings from a YAML file. A missing file yields zero
// settings without error so the file stays optional.
func LoadFile(path string) (Settings, error) {
	var s Settings
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("parse config %s: %w", path, err)
	}
	return s, nil
}

// DefaultFilePath returns the conventional config file location,
// ~/.config/cardmail/config.yaml.
func DefaultFilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cardmail", "config.yaml")
}

// FromEnv reads CARDMAIL_* environment overrides.
func FromEnv() Settings {
	var s Settings
	s.VCardDir = os.Getenv("CARDMAIL_VCARD_DIR")
	s.ContactListFile = os.Getenv("CARDMAIL_CONTACT_LIST_FILE")
	s.EnableCompletion = envBool("CARDMAIL_ENABLE_COMPLETION")
	s.EnableHover = envBool("CARDMAIL_ENABLE_HOVER")
	s.EnableCodeActions = envBool("CARDMAIL_ENABLE_CODE_ACTIONS")
	s.EnableGotoDefinition = envBool("CARDMAIL_ENABLE_GOTO_DEFINITION")
	s.Watch = envBool("CARDMAIL_WATCH")
	if v := os.Getenv("CARDMAIL_COMPLETION_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.CompletionLimit = n
		}
	}
	return s
}

func envBool(key string) *bool {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

// FromInitOptions decodes the client's initializationOptions payload.
func FromInitOptions(raw json.RawMessage) (Settings, error) {
	var s Settings
	if len(raw) == 0 || string(raw) == "null" {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("parse initialization options: %w", err)
	}
	return s, nil
}

// Resolve layers file, environment, and initialization options, then
// expands a leading ~ in the path fields.
func Resolve(filePath string, initOptions json.RawMessage) (Settings, error) {
	if filePath == "" {
		filePath = DefaultFilePath()
	}
	s, err := LoadFile(filePath)
	if err != nil {
		return s, err
	}
	s = s.Merge(FromEnv())
	init, err := FromInitOptions(initOptions)
	if err != nil {
		return s, err
	}
	s = s.Merge(init)
	s.VCardDir = ExpandHome(s.VCardDir)
	s.ContactListFile = ExpandHome(s.ContactListFile)
	return s, nil
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}
