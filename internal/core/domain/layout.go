package domain

import "path/filepath"

const (
	// GridDirName is the name of the internal state directory.
	GridDirName = ".grid"

	// CacheDirName is the name of the environment snapshot cache directory.
	CacheDirName = "cache"

	// ReportsDirName is the name of the directory that holds published reports.
	ReportsDirName = "reports"

	// NixHubDirName is the name of the NixHub resolution cache directory.
	NixHubDirName = "nixhub"

	// EnvDirName is the name of the directory that holds built environments.
	EnvDirName = "environments"

	// CoverageDirName is the name of the directory holding per-invocation coverage files.
	CoverageDirName = "coverage"

	// ConfigFileName is the name of the YAML configuration file.
	ConfigFileName = "grid.yaml"

	// ConfigFileNameJSON is the name of the JSON configuration file.
	ConfigFileNameJSON = "grid.json"

	// ConfigFileNameJSONC is the name of the JSON-with-comments configuration file.
	ConfigFileNameJSONC = "grid.jsonc"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600
)

// ConfigFileNames lists the configuration file names in lookup order.
func ConfigFileNames() []string {
	return []string{ConfigFileName, ConfigFileNameJSONC, ConfigFileNameJSON}
}

// DefaultGridPath returns the default root directory for grid state.
func DefaultGridPath() string {
	return GridDirName
}

// DefaultCachePath returns the default path of the local snapshot store.
func DefaultCachePath() string {
	return filepath.Join(GridDirName, CacheDirName)
}

// DefaultReportsPath returns the default path of the file report sink.
func DefaultReportsPath() string {
	return filepath.Join(GridDirName, ReportsDirName)
}

// DefaultNixHubCachePath returns the default path for the NixHub cache.
func DefaultNixHubCachePath() string {
	return filepath.Join(GridDirName, NixHubDirName)
}

// DefaultCoveragePath returns the default path for per-invocation coverage directories.
func DefaultCoveragePath() string {
	return filepath.Join(GridDirName, CoverageDirName)
}

// DefaultEnvPath returns the default path for built environment directories.
func DefaultEnvPath() string {
	return filepath.Join(GridDirName, EnvDirName)
}
