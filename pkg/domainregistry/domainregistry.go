// Package domainregistry loads the typed field schema a precedent
// engine scores cases against: field definitions, comparability gates,
// the similarity floor, and canonical outcome mappings, for one
// domain (e.g. "banking_aml"). A Registry is read from YAML once at
// startup and never mutated afterward — the precedent engine treats
// it as a constant.
package domainregistry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/decisiongraph/core/pkg/apperr"
	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

// FieldType is a field's value domain.
type FieldType string

const (
	FieldBoolean    FieldType = "BOOLEAN"
	FieldCategorical FieldType = "CATEGORICAL"
	FieldNumeric    FieldType = "NUMERIC"
	FieldOrdinal    FieldType = "ORDINAL"
	FieldSet        FieldType = "SET"
)

// Comparison names the similarity comparator a field uses.
type Comparison string

const (
	ComparisonExact           Comparison = "EXACT"
	ComparisonEquivalenceClass Comparison = "EQUIVALENCE_CLASS"
	ComparisonDistanceDecay   Comparison = "DISTANCE_DECAY"
	ComparisonStep            Comparison = "STEP"
	ComparisonJaccard         Comparison = "JACCARD"
)

// Tier classifies how structurally load-bearing a field is.
type Tier string

const (
	TierStructural Tier = "STRUCTURAL"
	TierBehavioral Tier = "BEHAVIORAL"
	TierContextual Tier = "CONTEXTUAL"
)

// FieldDef describes one scored field.
type FieldDef struct {
	Name        string             `yaml:"name"`
	Type        FieldType          `yaml:"type"`
	Comparison  Comparison         `yaml:"comparison"`
	Weight      float64            `yaml:"weight"`
	Tier        Tier               `yaml:"tier"`
	Required    bool               `yaml:"required"`
	Critical    bool               `yaml:"critical"`

	// EquivalenceClasses maps a raw value to the equivalence class it
	// belongs to, for EQUIVALENCE_CLASS-compared CATEGORICAL fields.
	EquivalenceClasses map[string]string `yaml:"equivalence_classes,omitempty"`
	// DecayRate parameterizes DISTANCE_DECAY similarity for NUMERIC fields.
	DecayRate float64 `yaml:"decay_rate,omitempty"`
	// StepOrder lists ORDINAL values from lowest to highest, for STEP comparison.
	StepOrder []string `yaml:"step_order,omitempty"`
}

// Gate is one comparability-gate check. If CEL is non-empty it is
// compiled once at load time and evaluated with "case" and
// "precedent" as the field values under comparison; an empty CEL
// falls back to the field's equivalence-class membership check.
type Gate struct {
	Field string `yaml:"field"`
	CEL   string `yaml:"cel,omitempty"`
}

// OutcomeMapping translates a domain's raw outcome vocabulary to the
// ledger's canonical disposition/disposition_basis/reporting values.
type OutcomeMapping struct {
	Disposition      map[string]string `yaml:"disposition"`
	DispositionBasis map[string]string `yaml:"disposition_basis"`
	Reporting        map[string]string `yaml:"reporting"`
}

// Registry is one domain's immutable, loaded-once schema.
type Registry struct {
	DomainID                 string              `yaml:"domain_id"`
	Fields                   map[string]FieldDef `yaml:"fields"`
	ComparabilityGates       []Gate              `yaml:"comparability_gates"`
	SimilarityFloor          float64             `yaml:"similarity_floor"`
	SimilarityFloorOverrides map[string]float64  `yaml:"similarity_floor_overrides"`
	PoolMinimum              int                 `yaml:"pool_minimum"`
	OutcomeMappings          OutcomeMapping      `yaml:"outcome_mappings"`

	criticalFields map[string]bool
	celPrograms    map[string]cel.Program
}

// Field looks up a field definition by name.
func (r *Registry) Field(name string) (FieldDef, bool) {
	f, ok := r.Fields[name]
	return f, ok
}

// IsCritical reports whether name is a critical field.
func (r *Registry) IsCritical(name string) bool {
	return r.criticalFields[name]
}

// SimilarityFloorFor returns the similarity floor for typology,
// falling back to the domain-wide floor when no override exists.
func (r *Registry) SimilarityFloorFor(typology string) float64 {
	if f, ok := r.SimilarityFloorOverrides[typology]; ok {
		return f
	}
	return r.SimilarityFloor
}

// EvaluateGate runs gate's compiled CEL predicate (if any) against
// caseValue and precedentValue, returning its boolean result. A gate
// with no CEL expression has nothing to evaluate here; the caller
// falls back to equivalence-class comparison using the field's
// EquivalenceClasses map.
func (r *Registry) EvaluateGate(gate Gate, caseValue, precedentValue interface{}) (bool, error) {
	prg, ok := r.celPrograms[gate.Field]
	if !ok {
		return false, apperr.New(apperr.CodeInvalidField, "gate has no compiled CEL predicate: "+gate.Field)
	}
	out, _, err := prg.Eval(map[string]interface{}{
		"case":      caseValue,
		"precedent": precedentValue,
	})
	if err != nil {
		return false, apperr.Wrap(apperr.CodeInvalidField, "evaluating comparability gate", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, apperr.New(apperr.CodeInvalidField, "comparability gate did not evaluate to a bool: "+gate.Field)
	}
	return result, nil
}

var celEnv *cel.Env
var celEnvOnce sync.Once
var celEnvErr error

func sharedCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("case", cel.DynType),
			cel.Variable("precedent", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Load reads one domain registry from a YAML file. Every gate
// carrying a CEL expression is compiled immediately, so a malformed
// predicate fails at load time rather than mid-query.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeIOFailure, "domainregistry: reading "+path, err)
	}

	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidField, "domainregistry: parsing "+path, err)
	}
	if r.DomainID == "" {
		return nil, apperr.New(apperr.CodeInvalidField, "domainregistry: domain_id is required in "+path)
	}

	r.criticalFields = make(map[string]bool)
	for name, f := range r.Fields {
		if f.Critical {
			r.criticalFields[name] = true
		}
	}

	env, err := sharedCELEnv()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidField, "domainregistry: building CEL environment", err)
	}
	r.celPrograms = make(map[string]cel.Program)
	for _, gate := range r.ComparabilityGates {
		if gate.CEL == "" {
			continue
		}
		ast, issues := env.Compile(gate.CEL)
		if issues != nil && issues.Err() != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidField, fmt.Sprintf("domainregistry: compiling gate %q", gate.Field), issues.Err())
		}
		prg, err := env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidField, fmt.Sprintf("domainregistry: building program for gate %q", gate.Field), err)
		}
		r.celPrograms[gate.Field] = prg
	}

	return &r, nil
}

// LoadDir loads every *.yaml / *.yml file under dir, keyed by each
// registry's DomainID.
func LoadDir(dir string) (map[string]*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeIOFailure, "domainregistry: listing "+dir, err)
	}

	registries := make(map[string]*Registry)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		r, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		registries[r.DomainID] = r
	}
	return registries, nil
}
