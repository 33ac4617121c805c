// Package matrix expands declared axes and override rows into job specifications.
package matrix

import (
	"maps"
	"slices"

	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
)

// Expand computes the cross product of m's axes and merges override fields into each cell.
//
// Cells are ordered by axis declaration order, then by value declaration order within each
// axis, with the first axis varying slowest. Override rows apply in declaration order and
// later rows win on field collisions. A row that matches no cell is a configuration error.
func Expand(m domain.Matrix) ([]domain.JobSpec, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}

	cells := crossProduct(m.Axes)
	used := make([]bool, len(m.Overrides))
	specs := make([]domain.JobSpec, 0, len(cells))

	for _, cell := range cells {
		probe := domain.NewJobSpec(cell, nil)
		fields := make(map[string]string)
		for i, row := range m.Overrides {
			if !probe.Matches(row.Match) {
				continue
			}
			used[i] = true
			maps.Copy(fields, row.Set)
		}
		specs = append(specs, domain.NewJobSpec(cell, fields))
	}

	for i, ok := range used {
		if !ok {
			return nil, zerr.With(zerr.With(
				zerr.Wrap(domain.ErrDeadOverride, "override never applies"),
				"override", i), "match", describeMatch(m.Overrides[i].Match))
		}
	}

	return specs, nil
}

// Validate checks axes and override rows without expanding the matrix.
func Validate(m domain.Matrix) error {
	if len(m.Axes) == 0 {
		return zerr.Wrap(domain.ErrEmptyMatrix, "cannot expand matrix")
	}

	axes := make(map[string]struct{}, len(m.Axes))
	for _, axis := range m.Axes {
		if axis.Name == "" || len(axis.Values) == 0 {
			return zerr.With(zerr.Wrap(domain.ErrEmptyAxis, "invalid axis"), "axis", axis.Name)
		}
		if _, dup := axes[axis.Name]; dup {
			return zerr.With(zerr.Wrap(domain.ErrDuplicateAxis, "invalid axis"), "axis", axis.Name)
		}
		axes[axis.Name] = struct{}{}

		seen := make(map[string]struct{}, len(axis.Values))
		for _, v := range axis.Values {
			if _, dup := seen[v]; dup {
				return zerr.With(zerr.With(
					zerr.Wrap(domain.ErrDuplicateAxisValue, "invalid axis"), "axis", axis.Name), "value", v)
			}
			seen[v] = struct{}{}
		}
	}

	for i, row := range m.Overrides {
		for name := range row.Match {
			if _, ok := axes[name]; !ok {
				return zerr.With(zerr.With(
					zerr.Wrap(domain.ErrUnknownOverrideAxis, "invalid override"), "override", i), "axis", name)
			}
		}
		for field := range row.Set {
			if _, ok := axes[field]; ok {
				return zerr.With(zerr.With(
					zerr.Wrap(domain.ErrShadowedAxis, "invalid override"), "override", i), "field", field)
			}
		}
	}

	return nil
}

// crossProduct enumerates cells in row-major order.
func crossProduct(axes []domain.Axis) [][]domain.AxisValue {
	total := 1
	for _, a := range axes {
		total *= len(a.Values)
	}

	cells := make([][]domain.AxisValue, 0, total)
	idx := make([]int, len(axes))
	for range total {
		cell := make([]domain.AxisValue, len(axes))
		for i, a := range axes {
			cell[i] = domain.AxisValue{Axis: a.Name, Value: a.Values[idx[i]]}
		}
		cells = append(cells, cell)

		// Advance the last axis fastest.
		for i := len(axes) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axes[i].Values) {
				break
			}
			idx[i] = 0
		}
	}
	return cells
}

func describeMatch(match map[string]string) string {
	keys := slices.Sorted(maps.Keys(match))
	spec := make([]domain.AxisValue, len(keys))
	for i, k := range keys {
		spec[i] = domain.AxisValue{Axis: k, Value: match[k]}
	}
	return domain.NewJobSpec(spec, nil).ID()
}
