// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Tier is the coarse confidence bucket of a verdict.
type Tier string

const (
	TierVerified Tier = "verified"
	TierMismatch Tier = "mismatch"
	TierNotFound Tier = "not_found"
	TierUnknown  Tier = "unknown"
)

// Field names a compared metadata field.
type Field string

const (
	FieldTitle   Field = "title"
	FieldAuthors Field = "authors"
	FieldYear    Field = "year"
	FieldVenue   Field = "venue"
)

// Severity says how an operator should read a field diff.
type Severity string

const (
	// SeverityMajor diffs drive the mismatch tier.
	SeverityMajor Severity = "major"
	// SeverityMinor diffs are below the report threshold but above the
	// tier threshold.
	SeverityMinor Severity = "minor"
	// SeverityPossibleArtifact marks off-by-one years, which are usually
	// preprint vs. publication dates.
	SeverityPossibleArtifact Severity = "possible_artifact"
	// SeverityInformational marks venue differences, never a hard mismatch.
	SeverityInformational Severity = "informational"
)

// FieldDiff reports one field whose best evidence is below its report
// threshold.
type FieldDiff struct {
	Field       Field    `json:"field" yaml:"field"`
	BibValue    string   `json:"bib_value" yaml:"bib_value"`
	SourceValue string   `json:"source_value" yaml:"source_value"`
	Source      SourceID `json:"source" yaml:"source"`
	Similarity  float64  `json:"similarity" yaml:"similarity"`
	Severity    Severity `json:"severity" yaml:"severity"`
}

// Evidence is the best-matched source record handed to the relevance
// collaborator for context matching.
type Evidence struct {
	Source     SourceID `json:"source" yaml:"source"`
	Identifier string   `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	URL        string   `json:"url,omitempty" yaml:"url,omitempty"`
	Abstract   string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
}

// SourceFailure records a source that could not be consulted for an entry.
type SourceFailure struct {
	Source  SourceID  `json:"source" yaml:"source"`
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Message string    `json:"message,omitempty" yaml:"message,omitempty"`
}

// Verdict is the engine's judgment for one BibEntry.
type Verdict struct {
	Key    string  `json:"key" yaml:"key"`
	Exists bool    `json:"exists" yaml:"exists"`
	Tier   Tier    `json:"tier" yaml:"tier"`
	Score  float64 `json:"score" yaml:"score"`

	// Diffs lists every field below its report threshold, including when
	// the tier is verified.
	Diffs []FieldDiff `json:"diffs" yaml:"diffs"`

	// Sources lists the sources that returned a record, in canonical order.
	Sources []SourceID `json:"sources" yaml:"sources"`

	// NotFoundBy lists sources that definitively found nothing.
	NotFoundBy []SourceID `json:"not_found_by,omitempty" yaml:"not_found_by,omitempty"`

	// Failures lists sources that errored for this entry.
	Failures []SourceFailure `json:"failures,omitempty" yaml:"failures,omitempty"`

	Evidence *Evidence `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// HasDiff reports whether the verdict lists a diff for field.
func (v Verdict) HasDiff(field Field) bool {
	for _, d := range v.Diffs {
		if d.Field == field {
			return true
		}
	}
	return false
}

// DuplicateCluster groups citation keys that are near-duplicates. Members
// are the connected component of the link relation, in bibliography order.
type DuplicateCluster struct {
	Keys []string `json:"keys" yaml:"keys"`

	// MaxSimilarity is the strongest link inside the cluster.
	MaxSimilarity float64 `json:"max_similarity" yaml:"max_similarity"`
}
