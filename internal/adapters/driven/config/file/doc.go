// Package file provides file-based implementations of driven port interfaces.
// These adapters persist data under the user's ~/.distillyzer directory.
//
// Adapters:
//   - ConfigStore: TOML-based configuration storage
//   - PromptStore: user-editable LLM prompts with embedded defaults
package file
