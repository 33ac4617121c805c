package domain

import (
	"maps"
	"slices"
	"strings"
)

// Axis is one named dimension of a test matrix with an ordered list of discrete values.
type Axis struct {
	Name   string
	Values []string
}

// OverrideRow adds fields to every matrix cell whose axis values equal all of Match.
type OverrideRow struct {
	Match map[string]string
	Set   map[string]string
}

// Matrix is the declared axes of one job class plus its override rows.
type Matrix struct {
	Axes      []Axis
	Overrides []OverrideRow
}

// AxisValue binds a value to an axis name.
type AxisValue struct {
	Axis  string
	Value string
}

// JobSpec is the resolved record for one matrix cell.
// It is immutable: accessors return copies.
type JobSpec struct {
	values []AxisValue
	fields map[string]string
}

// NewJobSpec creates a JobSpec from axis values in declaration order and merged override fields.
func NewJobSpec(values []AxisValue, fields map[string]string) JobSpec {
	f := make(map[string]string, len(fields))
	maps.Copy(f, fields)
	return JobSpec{
		values: slices.Clone(values),
		fields: f,
	}
}

// Values returns the axis values in declaration order.
func (j JobSpec) Values() []AxisValue {
	return slices.Clone(j.values)
}

// Fields returns a copy of the override fields merged into the cell.
func (j JobSpec) Fields() map[string]string {
	f := make(map[string]string, len(j.fields))
	maps.Copy(f, j.fields)
	return f
}

// Value returns the value of the named axis.
func (j JobSpec) Value(axis string) (string, bool) {
	for _, v := range j.values {
		if v.Axis == axis {
			return v.Value, true
		}
	}
	return "", false
}

// Field returns the value of the named override field.
func (j JobSpec) Field(name string) (string, bool) {
	v, ok := j.fields[name]
	return v, ok
}

// Lookup resolves a name against the axis values first and the override fields second.
func (j JobSpec) Lookup(name string) (string, bool) {
	if v, ok := j.Value(name); ok {
		return v, true
	}
	return j.Field(name)
}

// ID returns the display identity of the job: axis=value pairs in declaration order.
func (j JobSpec) ID() string {
	parts := make([]string, len(j.values))
	for i, v := range j.values {
		parts[i] = v.Axis + "=" + v.Value
	}
	return strings.Join(parts, ",")
}

// String implements fmt.Stringer.
func (j JobSpec) String() string {
	return j.ID()
}

// Equal reports whether both specs bind the same axis values, regardless of order.
func (j JobSpec) Equal(other JobSpec) bool {
	if len(j.values) != len(other.values) {
		return false
	}
	for _, v := range j.values {
		ov, ok := other.Value(v.Axis)
		if !ok || ov != v.Value {
			return false
		}
	}
	return true
}

// Matches reports whether every axis named in match has the given value in this job.
func (j JobSpec) Matches(match map[string]string) bool {
	for axis, want := range match {
		got, ok := j.Value(axis)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Env returns the job's axis values and fields as GRID_<NAME>=value pairs, sorted by name.
func (j JobSpec) Env() []string {
	vars := make(map[string]string, len(j.values)+len(j.fields))
	for k, v := range j.fields {
		vars[EnvName(k)] = v
	}
	for _, v := range j.values {
		vars[EnvName(v.Axis)] = v.Value
	}

	env := make([]string, 0, len(vars))
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		env = append(env, k+"="+vars[k])
	}
	return env
}

var envNameReplacer = strings.NewReplacer("-", "_", ".", "_", " ", "_")

// EnvName converts an axis or field name into its GRID_ environment variable name.
func EnvName(name string) string {
	return EnvPrefix + strings.ToUpper(envNameReplacer.Replace(name))
}

// EnvPrefix is the prefix of every environment variable grid passes to collaborators.
const EnvPrefix = "GRID_"
