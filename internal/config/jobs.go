package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/orbit-composite/internal/composite"
	"github.com/robert-malhotra/orbit-composite/internal/engine"
)

// JobConfig is a batch composite job over an area of interest. It is
// typically loaded from YAML or JSON files in the jobs directory.
type JobConfig struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
	// Script is the registry name of the composite script.
	Script string `yaml:"script" json:"script"`
	// AOI is the path or URL of the area-of-interest GeoJSON.
	AOI          string   `yaml:"aoi" json:"aoi"`
	TimeInterval []string `yaml:"time_interval" json:"time_interval"`
	// MaxCloudCoverage is the maximum tile cloud fraction, in (0, 1].
	MaxCloudCoverage float64        `yaml:"maxcc" json:"maxcc"`
	MosaickingOrder  string         `yaml:"mosaicking_order" json:"mosaicking_order"`
	Grid             GridDefinition `yaml:"grid" json:"grid"`
	TilesPath        string         `yaml:"tiles_path" json:"tiles_path"`
}

// GridDefinition selects the tiling grid of a batch job.
type GridDefinition struct {
	ID         int     `yaml:"id" json:"id"`
	Resolution float64 `yaml:"resolution" json:"resolution"`
	Buffer     []int   `yaml:"buffer" json:"buffer"`
}

// DataFilter returns the engine filter for this job.
// The job must have passed validation.
func (j *JobConfig) DataFilter() engine.DataFilter {
	order, _ := engine.ParseMosaickingOrder(j.MosaickingOrder)
	filter := engine.DataFilter{
		MaxCloudCoverage: j.MaxCloudCoverage,
		Order:            order,
	}
	if len(j.TimeInterval) == 2 {
		filter.From, _ = composite.ParseTime(j.TimeInterval[0])
		filter.To, _ = composite.ParseTime(j.TimeInterval[1])
		// An end at midnight covers that whole day.
		if !filter.To.IsZero() && filter.To.Equal(filter.To.Truncate(24*time.Hour)) {
			filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
		}
	}
	return filter
}

// JobRegistry holds all loaded job definitions indexed by ID.
type JobRegistry struct {
	jobs map[string]*JobConfig
}

// NewJobRegistry creates a new empty job registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{
		jobs: make(map[string]*JobConfig),
	}
}

// LoadJobs loads job definitions from .yaml, .yml and .json files in dir.
// Each job's script must exist in scripts.
func LoadJobs(dir string, scripts *composite.Registry) (*JobRegistry, error) {
	registry := NewJobRegistry()

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access jobs directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("jobs path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs directory %q: %w", dir, err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}

		filePath := filepath.Join(dir, entry.Name())
		job, err := loadJobFile(filePath, scripts)
		if err != nil {
			return nil, fmt.Errorf("failed to load job from %q: %w", filePath, err)
		}

		if err := registry.Add(job); err != nil {
			return nil, fmt.Errorf("failed to add job from %q: %w", filePath, err)
		}

		loadedCount++
	}

	if loadedCount == 0 {
		return nil, fmt.Errorf("no job files found in %q", dir)
	}

	return registry, nil
}

// loadJobFile loads a single job definition. JSON files are parsed by the
// YAML decoder as well.
func loadJobFile(filePath string, scripts *composite.Registry) (*JobConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var job JobConfig
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}

	if err := ValidateJob(&job, scripts); err != nil {
		return nil, fmt.Errorf("invalid job configuration: %w", err)
	}

	return &job, nil
}

// ValidateJob checks that a job definition is valid.
func ValidateJob(j *JobConfig, scripts *composite.Registry) error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if j.Script == "" {
		return fmt.Errorf("job script is required")
	}

	if scripts != nil && !scripts.Has(j.Script) {
		return fmt.Errorf("unknown script %q, must be one of: %s", j.Script, strings.Join(scripts.Names(), ", "))
	}

	if j.TilesPath == "" {
		return fmt.Errorf("job tiles path is required")
	}

	if len(j.TimeInterval) != 2 {
		return fmt.Errorf("time interval must have exactly 2 values, got %d", len(j.TimeInterval))
	}

	from, err := composite.ParseTime(j.TimeInterval[0])
	if err != nil {
		return fmt.Errorf("invalid time interval start: %w", err)
	}
	to, err := composite.ParseTime(j.TimeInterval[1])
	if err != nil {
		return fmt.Errorf("invalid time interval end: %w", err)
	}
	if to.Before(from) {
		return fmt.Errorf("time interval end %s is before start %s", j.TimeInterval[1], j.TimeInterval[0])
	}

	if j.MaxCloudCoverage < 0 || j.MaxCloudCoverage > 1 {
		return fmt.Errorf("maxcc must be between 0 and 1, got %g", j.MaxCloudCoverage)
	}

	if _, err := engine.ParseMosaickingOrder(j.MosaickingOrder); err != nil {
		return err
	}

	if j.Grid.Resolution < 0 {
		return fmt.Errorf("grid resolution must not be negative, got %g", j.Grid.Resolution)
	}

	if len(j.Grid.Buffer) != 0 && len(j.Grid.Buffer) != 2 {
		return fmt.Errorf("grid buffer must have 2 values, got %d", len(j.Grid.Buffer))
	}

	return nil
}

// Add registers a job in the registry.
// Returns an error if a job with the same ID already exists.
func (r *JobRegistry) Add(job *JobConfig) error {
	if job == nil {
		return fmt.Errorf("cannot add nil job")
	}

	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("job with ID %q already exists", job.ID)
	}

	r.jobs[job.ID] = job
	return nil
}

// Get retrieves a job by ID.
// Returns nil if the job does not exist.
func (r *JobRegistry) Get(id string) *JobConfig {
	return r.jobs[id]
}

// Has checks if a job with the given ID exists in the registry.
func (r *JobRegistry) Has(id string) bool {
	_, exists := r.jobs[id]
	return exists
}

// All returns all jobs sorted by ID.
func (r *JobRegistry) All() []*JobConfig {
	jobs := make([]*JobConfig, 0, len(r.jobs))
	for _, id := range r.IDs() {
		jobs = append(jobs, r.jobs[id])
	}
	return jobs
}

// IDs returns all job IDs in sorted order.
func (r *JobRegistry) IDs() []string {
	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of jobs in the registry.
func (r *JobRegistry) Count() int {
	return len(r.jobs)
}

// FindByScript returns all jobs that run the given script.
func (r *JobRegistry) FindByScript(script string) []*JobConfig {
	var matches []*JobConfig
	for _, job := range r.All() {
		if job.Script == script {
			matches = append(matches, job)
		}
	}
	return matches
}
