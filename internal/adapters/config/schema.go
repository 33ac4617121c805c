package config

import (
	"bytes"
	_ "embed"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://go.trai.ch/grid/grid.schema.json"

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
})

// Gridfile represents the structure of the grid configuration document.
type Gridfile struct {
	Version     string              `json:"version"`
	Root        string              `json:"root"`
	Concurrency int                 `json:"concurrency"`
	Keys        KeysDTO             `json:"keys"`
	Cache       CacheDTO            `json:"cache"`
	Environment EnvironmentDTO      `json:"environment"`
	Install     CommandDTO          `json:"install"`
	Test        TestDTO             `json:"test"`
	Report      ReportDTO           `json:"report"`
	Classes     map[string]ClassDTO `json:"classes"`
}

// KeysDTO names the job values the cache key is derived from.
type KeysDTO struct {
	Platform string `json:"platform"`
	Label    string `json:"label"`
	Runtime  string `json:"runtime"`
}

// CacheDTO configures environment caching.
type CacheDTO struct {
	Generation int      `json:"generation"`
	Store      StoreDTO `json:"store"`
}

// StoreDTO configures the cache store.
type StoreDTO struct {
	Kind        string    `json:"kind"`
	Path        string    `json:"path"`
	Compression string    `json:"compression"`
	Remote      RemoteDTO `json:"remote"`
}

// RemoteDTO locates an S3-compatible bucket.
type RemoteDTO struct {
	Endpoint     string `json:"endpoint"`
	Bucket       string `json:"bucket"`
	Prefix       string `json:"prefix"`
	Region       string `json:"region"`
	Insecure     bool   `json:"insecure"`
	AccessKeyEnv string `json:"accessKeyEnv"`
	SecretKeyEnv string `json:"secretKeyEnv"`
}

// EnvironmentDTO configures the environment builder.
type EnvironmentDTO struct {
	Builder  string     `json:"builder"`
	Spec     []string   `json:"spec"`
	Command  CommandDTO `json:"command"`
	Packages []string   `json:"packages"`
}

// CommandDTO is an external command.
type CommandDTO struct {
	Args    []string          `json:"args"`
	Dir     string            `json:"dir"`
	Env     map[string]string `json:"env"`
	Timeout string            `json:"timeout"`
}

// TestDTO configures the test runner.
type TestDTO struct {
	Command  CommandDTO  `json:"command"`
	Coverage CoverageDTO `json:"coverage"`
}

// CoverageDTO locates the coverage file.
type CoverageDTO struct {
	Path   string `json:"path"`
	Format string `json:"format"`
}

// ReportDTO configures publication.
type ReportDTO struct {
	Sink SinkDTO `json:"sink"`
}

// SinkDTO configures the report sink.
type SinkDTO struct {
	Kind   string    `json:"kind"`
	Path   string    `json:"path"`
	Remote RemoteDTO `json:"remote"`
	DSNEnv string    `json:"dsnEnv"`
	Table  string    `json:"table"`
}

// ClassDTO configures one job class.
type ClassDTO struct {
	Matrix MatrixDTO `json:"matrix"`
	Modes  []string  `json:"modes"`
}

// MatrixDTO declares axes and override rows.
type MatrixDTO struct {
	Axes      []AxisDTO     `json:"axes"`
	Overrides []OverrideDTO `json:"overrides"`
}

// AxisDTO is one matrix axis.
type AxisDTO struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// OverrideDTO is one override row.
type OverrideDTO struct {
	Match map[string]string `json:"match"`
	Set   map[string]string `json:"set"`
}
