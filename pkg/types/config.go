// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by every source adapter.
type HTTPConfig struct {
	// Timeout is the per-call deadline for one source request.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "citecheck/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// FetchConfig controls the orchestrator's worker pool and retries.
type FetchConfig struct {
	// Workers is the maximum number of in-flight (entry, source) operations.
	Workers int `json:"workers" yaml:"workers"`

	// RunTimeout bounds the whole run; 0 disables it.
	RunTimeout time.Duration `json:"run_timeout" yaml:"run_timeout"`

	// MaxRetries bounds retries of timeout and unreachable failures.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// MaxRateLimitRetries bounds retries after a source reports rate limiting.
	MaxRateLimitRetries int `json:"max_rate_limit_retries" yaml:"max_rate_limit_retries"`

	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
}

// SourceConfig holds per-source settings.
type SourceConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Requests and Window set the rate cap: at most Requests calls in any
	// sliding Window.
	Requests int           `json:"requests" yaml:"requests"`
	Window   time.Duration `json:"window" yaml:"window"`

	// MinInterval is the minimum gap between calls (default Window/Requests).
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval"`

	// MaxInterval caps the backed-off interval after rate-limit responses.
	MaxInterval time.Duration `json:"max_interval" yaml:"max_interval"`

	// RecoverAfter is the run of successes after which the interval steps
	// back down by MinInterval.
	RecoverAfter int `json:"recover_after" yaml:"recover_after"`

	// APIKey is sent to sources that accept one (Semantic Scholar).
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Mailto is sent to sources with a polite pool (OpenAlex, CrossRef).
	Mailto string `json:"mailto,omitempty" yaml:"mailto,omitempty"`

	// MaxResults is the number of candidates requested per query.
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// CacheConfig locates the persistent cache.
type CacheConfig struct {
	Dir string `json:"dir" yaml:"dir"`

	// RetryErrors treats cached error markers as misses.
	RetryErrors bool `json:"retry_errors" yaml:"retry_errors"`

	// Disabled skips the cache entirely.
	Disabled bool `json:"disabled" yaml:"disabled"`
}

// FieldWeights weight field similarities in the aggregate score.
type FieldWeights struct {
	Title   float64 `json:"title" yaml:"title"`
	Authors float64 `json:"authors" yaml:"authors"`
	Year    float64 `json:"year" yaml:"year"`
	Venue   float64 `json:"venue" yaml:"venue"`
}

// ReconcileConfig holds the reconciliation thresholds. The year tolerance
// and venue leniency are policy choices and stay adjustable.
type ReconcileConfig struct {
	Weights FieldWeights `json:"weights" yaml:"weights"`

	// Tier thresholds: a best similarity below these makes the entry a mismatch.
	TitleThreshold  float64 `json:"title_threshold" yaml:"title_threshold"`
	AuthorThreshold float64 `json:"author_threshold" yaml:"author_threshold"`
	YearThreshold   float64 `json:"year_threshold" yaml:"year_threshold"`

	// Report thresholds: a best similarity below these is listed in the diffs.
	TitleReport  float64 `json:"title_report" yaml:"title_report"`
	AuthorReport float64 `json:"author_report" yaml:"author_report"`
	VenueReport  float64 `json:"venue_report" yaml:"venue_report"`

	// YearTolerance is the delta scored as a possible artifact.
	YearTolerance int `json:"year_tolerance" yaml:"year_tolerance"`
	// YearToleranceScore is the similarity assigned within the tolerance.
	YearToleranceScore float64 `json:"year_tolerance_score" yaml:"year_tolerance_score"`

	// LenientVenue accepts abbreviation vs. full-name venue variants.
	LenientVenue bool `json:"lenient_venue" yaml:"lenient_venue"`

	// CandidateFloor is the title similarity an adapter candidate needs to
	// count as found.
	CandidateFloor float64 `json:"candidate_floor" yaml:"candidate_floor"`
}

// DuplicateConfig controls near-duplicate detection.
type DuplicateConfig struct {
	// Threshold is the combined similarity above which two entries link.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// TitleWeight weights title vs. authors in the combined similarity.
	TitleWeight float64 `json:"title_weight" yaml:"title_weight"`
}

// LedgerConfig locates the SQLite run ledger.
type LedgerConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

// Config groups every engine setting.
type Config struct {
	HTTP      HTTPConfig                `json:"http" yaml:"http"`
	Fetch     FetchConfig               `json:"fetch" yaml:"fetch"`
	Sources   map[SourceID]SourceConfig `json:"sources" yaml:"sources"`
	Cache     CacheConfig               `json:"cache" yaml:"cache"`
	Reconcile ReconcileConfig           `json:"reconcile" yaml:"reconcile"`
	Duplicate DuplicateConfig           `json:"duplicate" yaml:"duplicate"`
	Ledger    LedgerConfig              `json:"ledger" yaml:"ledger"`
}

// DefaultReconcileConfig returns the reconciliation defaults.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		Weights:            FieldWeights{Title: 0.45, Authors: 0.30, Year: 0.15, Venue: 0.10},
		TitleThreshold:     0.80,
		AuthorThreshold:    0.60,
		YearThreshold:      0.50,
		TitleReport:        0.95,
		AuthorReport:       0.999,
		VenueReport:        0.50,
		YearTolerance:      1,
		YearToleranceScore: 0.70,
		LenientVenue:       true,
		CandidateFloor:     0.50,
	}
}

// DefaultDuplicateConfig returns the duplicate detection defaults.
func DefaultDuplicateConfig() DuplicateConfig {
	return DuplicateConfig{Threshold: 0.85, TitleWeight: 0.7}
}

// DefaultSourceConfigs returns per-source pacing matching each service's
// published or observed limits. Google Scholar is disabled by default
// because it blocks automated traffic quickly.
func DefaultSourceConfigs() map[SourceID]SourceConfig {
	return map[SourceID]SourceConfig{
		SourceArxiv:           {Enabled: true, Requests: 1, Window: 3 * time.Second, MaxInterval: 60 * time.Second, RecoverAfter: 5, MaxResults: 5},
		SourceCrossRef:        {Enabled: true, Requests: 1, Window: time.Second, MaxInterval: 30 * time.Second, RecoverAfter: 5, MaxResults: 5},
		SourceDBLP:            {Enabled: true, Requests: 2, Window: 3 * time.Second, MaxInterval: 60 * time.Second, RecoverAfter: 5, MaxResults: 5},
		SourceSemanticScholar: {Enabled: true, Requests: 100, Window: 5 * time.Minute, MinInterval: 500 * time.Millisecond, MaxInterval: 60 * time.Second, RecoverAfter: 5, MaxResults: 5},
		SourceOpenAlex:        {Enabled: true, Requests: 10, Window: time.Second, MaxInterval: 10 * time.Second, RecoverAfter: 5, MaxResults: 5},
		SourceGoogleScholar:   {Enabled: false, Requests: 1, Window: 10 * time.Second, MaxInterval: 5 * time.Minute, RecoverAfter: 3, MaxResults: 5},
	}
}

// DefaultConfig returns the full default configuration.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "citecheck/0.1",
		},
		Fetch: FetchConfig{
			Workers:             4,
			RunTimeout:          30 * time.Minute,
			MaxRetries:          2,
			MaxRateLimitRetries: 4,
			RetryBaseDelay:      2 * time.Second,
		},
		Sources:   DefaultSourceConfigs(),
		Cache:     CacheConfig{Dir: ".cache/citecheck"},
		Reconcile: DefaultReconcileConfig(),
		Duplicate: DefaultDuplicateConfig(),
		Ledger:    LedgerConfig{Dir: ".citecheck"},
	}
}
