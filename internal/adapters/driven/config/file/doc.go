// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data to the local filesystem.
//
// Adapters:
//   - ConfigStore: TOML-based application settings
//   - PromptStore: editable stage prompt templates, watched with fsnotify
package file
