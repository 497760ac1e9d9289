package config

import (
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags toggles optional read models of the service.
// Rollout is bucketed by student id so a student sees a stable answer.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent 0-100.
	RolloutPercent int

	// TargetSections limits the feature to some sections. Empty means all.
	TargetSections []string
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	StudentID string
	Section   string
}

// Predefined feature flag names.
const (
	FeatureSimulation  = "orientation.simulation"
	FeatureComparison  = "orientation.comparison"
	FeatureProgress    = "orientation.progress"
	FeatureStanding    = "orientation.standing"
	FeatureReportCache = "cache.reports"
)

// LoadFeatureFlags builds the defaults and applies FEATURE_* overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	defaults := []Feature{
		{Name: FeatureSimulation, Description: "What-if grade simulation", Enabled: true, RolloutPercent: 100},
		{Name: FeatureComparison, Description: "Comparison with historical track averages", Enabled: true, RolloutPercent: 100},
		{Name: FeatureProgress, Description: "Rank over the four checkpoints", Enabled: true, RolloutPercent: 100},
		{Name: FeatureStanding, Description: "Section standing and weak subjects", Enabled: true, RolloutPercent: 100},
		{Name: FeatureReportCache, Description: "Serve orientation reports from Redis", Enabled: true, RolloutPercent: 100},
	}
	for i := range defaults {
		f := defaults[i]
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment reads FEATURE_<NAME>=true|false|<percent>,
// e.g. FEATURE_ORIENTATION_SIMULATION=false or FEATURE_CACHE_REPORTS=50.
// FEATURE_<NAME>_SECTIONS=mpi,bio restricts the sections.
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if sections := os.Getenv(envKey + "_SECTIONS"); sections != "" {
			feature.TargetSections = nil
			for _, s := range strings.Split(sections, ",") {
				if s = strings.TrimSpace(s); s != "" {
					feature.TargetSections = append(feature.TargetSections, s)
				}
			}
		}

		val := os.Getenv(envKey)
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			feature.RolloutPercent = 0
			if b {
				feature.RolloutPercent = 100
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey: "orientation.simulation" -> "FEATURE_ORIENTATION_SIMULATION".
func featureNameToEnvKey(name string) string {
	return "FEATURE_" + strings.ReplaceAll(strings.ToUpper(name), ".", "_")
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	if ff == nil {
		return true
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	if len(feature.TargetSections) > 0 && ctx != nil && ctx.Section != "" {
		match := false
		for _, s := range feature.TargetSections {
			if strings.EqualFold(s, ctx.Section) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.StudentID != "" {
		return inRollout(ctx.StudentID, featureName, feature.RolloutPercent)
	}
	return feature.RolloutPercent > 0
}

// inRollout hashes student+feature into a stable 0-99 bucket.
func inRollout(studentID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(studentID))
	return int(h.Sum32()%100) < percent
}

// SetRolloutPercent updates a feature's rollout.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature turns a feature fully on.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature turns a feature off.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// Names lists the known features.
func (ff *FeatureFlags) Names() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	names := make([]string, 0, len(ff.features))
	for n := range ff.features {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Feature flag errors.
var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag operation error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return "feature flag: " + e.Message
}
