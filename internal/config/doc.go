// Package config defines the settings model, the workspace directory layout
// and the loaders shared by every command.
//
// [Settings] is loaded once at process start from config/settings.yaml,
// defaulted, overridden from the environment and validated, then passed
// explicitly to the components that need it. Nothing reads the settings
// file ad hoc after startup.
package config
