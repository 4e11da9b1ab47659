package scanning

// RiskLevel grades how dangerous the content of a flagged item is considered
// to be by the cloud risk classifier.
type RiskLevel string

const (
	// RiskLevelLow indicates the item is unlikely to expose sensitive data.
	RiskLevelLow RiskLevel = "LOW"

	// RiskLevelMedium indicates partial or contextual exposure.
	RiskLevelMedium RiskLevel = "MEDIUM"

	// RiskLevelHigh indicates directly exploitable sensitive data.
	RiskLevelHigh RiskLevel = "HIGH"

	// RiskLevelUnknown is used when classification failed or never ran.
	RiskLevelUnknown RiskLevel = "UNKNOWN"
)

// String returns the string representation of the RiskLevel.
func (r RiskLevel) String() string { return string(r) }

// ParseRiskLevel converts a string to a RiskLevel, tolerating the lowercase
// wire form used by the classifier service.
func ParseRiskLevel(s string) RiskLevel {
	switch s {
	case "LOW", "low":
		return RiskLevelLow
	case "MEDIUM", "medium":
		return RiskLevelMedium
	case "HIGH", "high":
		return RiskLevelHigh
	default:
		return RiskLevelUnknown
	}
}

// CategoryPrediction is a classifier-assigned document category with its
// confidence.
type CategoryPrediction struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// SensitiveAnalysis is the review-time enrichment for a flagged item. It is
// produced on demand outside the scan loop, cached in memory per item, and is
// never required for a scan to complete.
type SensitiveAnalysis struct {
	explanation        string
	riskLevel          RiskLevel
	keyPhrases         []string
	recommendedActions []string
	categories         []CategoryPrediction
}

// NewSensitiveAnalysis creates an analysis result from classifier output.
func NewSensitiveAnalysis(
	explanation string,
	riskLevel RiskLevel,
	keyPhrases []string,
	recommendedActions []string,
	categories []CategoryPrediction,
) *SensitiveAnalysis {
	return &SensitiveAnalysis{
		explanation:        explanation,
		riskLevel:          riskLevel,
		keyPhrases:         keyPhrases,
		recommendedActions: recommendedActions,
		categories:         categories,
	}
}

// UnclassifiedAnalysis is the placeholder used when enrichment fails. Review
// of other items proceeds; this item simply shows as unclassified.
func UnclassifiedAnalysis() *SensitiveAnalysis {
	return &SensitiveAnalysis{
		explanation: "unclassified",
		riskLevel:   RiskLevelUnknown,
	}
}

// Explanation returns the classifier's human-readable explanation.
func (a *SensitiveAnalysis) Explanation() string { return a.explanation }

// RiskLevel returns the assigned risk tier.
func (a *SensitiveAnalysis) RiskLevel() RiskLevel { return a.riskLevel }

// KeyPhrases returns the phrases the classifier considered significant.
func (a *SensitiveAnalysis) KeyPhrases() []string { return a.keyPhrases }

// RecommendedActions returns the classifier's suggested user actions.
func (a *SensitiveAnalysis) RecommendedActions() []string { return a.recommendedActions }

// Categories returns the category predictions with confidences.
func (a *SensitiveAnalysis) Categories() []CategoryPrediction { return a.categories }

// IsClassified reports whether a real classification was obtained.
func (a *SensitiveAnalysis) IsClassified() bool { return a.riskLevel != RiskLevelUnknown }
