// Package features turns feature-table observations into numeric training
// matrices and single inference rows that share one schema and one
// missing-value policy.
package features

import (
	"errors"
	"fmt"
	"slices"

	"github.com/couchcryptid/air-quality-model/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// DefaultMinRows is the smallest usable row count that still leaves room for
// a held-out split.
const DefaultMinRows = 10

// DefaultAllowList is the ordered set of candidate feature columns.
var DefaultAllowList = []string{
	domain.ColTemp,
	domain.ColWindSpeed,
	domain.ColNO2,
	domain.ColO3,
	domain.ColPM25,
	domain.ColLat,
	domain.ColLon,
}

// FallbackSchema is the always-available feature set used when no
// allow-listed column survives.
var FallbackSchema = domain.FeatureSchema{domain.ColLat, domain.ColLon, domain.ColHourOfDay}

// Prepared is a training-ready dataset.
type Prepared struct {
	X       *mat.Dense // rows × len(Schema), no missing values
	Y       *mat.Dense // rows × len(Targets)
	Schema  domain.FeatureSchema
	Targets []string
	Medians map[string]float64
}

// Rows returns the number of usable rows.
func (p Prepared) Rows() int {
	r, _ := p.X.Dims()
	return r
}

// Preparer selects feature columns and imputes missing values.
type Preparer struct {
	allowList []string
	minRows   int
}

// NewPreparer creates a Preparer. A nil allow-list selects DefaultAllowList;
// minRows <= 0 selects DefaultMinRows.
func NewPreparer(allowList []string, minRows int) *Preparer {
	if len(allowList) == 0 {
		allowList = DefaultAllowList
	}
	if minRows <= 0 {
		minRows = DefaultMinRows
	}
	return &Preparer{allowList: slices.Clone(allowList), minRows: minRows}
}

// MinRows returns the configured minimum usable row count.
func (p *Preparer) MinRows() int { return p.minRows }

// Prepare builds the feature matrix and target vector for one target.
func (p *Preparer) Prepare(obs []domain.Observation, target string) (Prepared, error) {
	return p.PrepareMulti(obs, []string{target})
}

// PrepareMulti builds one shared feature matrix for several targets. Rows
// missing any target or without finite coordinates are dropped.
func (p *Preparer) PrepareMulti(obs []domain.Observation, targets []string) (Prepared, error) {
	if len(targets) == 0 {
		return Prepared{}, errors.New("prepare: no target given")
	}

	usable := make([]domain.Observation, 0, len(obs))
	for _, o := range obs {
		if hasAll(o, targets) && hasAll(o, coordinates) {
			usable = append(usable, o)
		}
	}
	if len(usable) < p.minRows {
		return Prepared{}, &domain.InsufficientDataError{
			Target: domain.TargetKey(targets),
			Rows:   len(usable),
			Min:    p.minRows,
		}
	}

	schema := p.selectColumns(usable, targets)
	medians, err := Medians(usable, schema)
	if err != nil {
		return Prepared{}, err
	}

	x := mat.NewDense(len(usable), len(schema), nil)
	y := mat.NewDense(len(usable), len(targets), nil)
	for i, o := range usable {
		for j, name := range schema {
			v, ok := o.Value(name)
			if !ok {
				v = medians[name]
			}
			x.Set(i, j, v)
		}
		for j, t := range targets {
			v, _ := o.Value(t)
			y.Set(i, j, v)
		}
	}

	return Prepared{
		X:       x,
		Y:       y,
		Schema:  schema,
		Targets: slices.Clone(targets),
		Medians: medians,
	}, nil
}

// selectColumns keeps allow-listed columns that are measured at least once
// and are not targets, in allow-list order.
func (p *Preparer) selectColumns(obs []domain.Observation, targets []string) domain.FeatureSchema {
	schema := make(domain.FeatureSchema, 0, len(p.allowList))
	for _, name := range p.allowList {
		if slices.Contains(targets, name) {
			continue
		}
		if present(obs, name) {
			schema = append(schema, name)
		}
	}
	if len(schema) == 0 {
		return slices.Clone(FallbackSchema)
	}
	return schema
}

func present(obs []domain.Observation, name string) bool {
	for _, o := range obs {
		if _, ok := o.Value(name); ok {
			return true
		}
	}
	return false
}

var coordinates = []string{domain.ColLat, domain.ColLon}

func hasAll(o domain.Observation, names []string) bool {
	for _, n := range names {
		if _, ok := o.Value(n); !ok {
			return false
		}
	}
	return true
}

// Medians computes the per-column median over the measured values of obs.
func Medians(obs []domain.Observation, schema domain.FeatureSchema) (map[string]float64, error) {
	medians := make(map[string]float64, len(schema))
	vals := make([]float64, 0, len(obs))
	for _, name := range schema {
		vals = vals[:0]
		for _, o := range obs {
			if v, ok := o.Value(name); ok {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			return nil, fmt.Errorf("median of %q: no measured values", name)
		}
		medians[name] = median(vals)
	}
	return medians, nil
}

// median sorts vals in place and averages the two middle values for even
// lengths.
func median(vals []float64) float64 {
	slices.Sort(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}
