package pipeline

import (
	"strings"

	regexp "github.com/wasilibs/go-re2"

	"github.com/photosentry/photosentry/internal/domain/scanning"
)

// LabelGovernmentID is the refined label for driver licenses and state IDs.
// The detector's generic id_card class covers both; refinement narrows it.
const LabelGovernmentID = "government_id"

// Structural signatures for document-type refinement. All matching runs on
// lowercased OCR text.
var (
	// 13-19 digit run, optionally grouped by spaces or dashes. The guards
	// keep a longer digit run from matching on a card-length sub-run.
	cardNumberRe = regexp.MustCompile(`(?:^|\D)(?:\d[ -]?){12}\d{1,7}(?:\D|$)`)

	// MM/YY or MM/YYYY expiration forms.
	cardExpiryRe = regexp.MustCompile(`(?:0[1-9]|1[0-2])\s*/\s*(?:\d{2}|\d{4})`)

	// Machine-readable zone line of a passport booklet.
	passportMRZRe = regexp.MustCompile(`(?m)^p<`)
)

var cardKeywordFamilies = [][]string{
	{"visa", "mastercard", "american express", "amex", "discover", "maestro"},
	{"valid thru", "valid through", "expires", "expiry", "exp date"},
	{"cardholder", "card holder"},
	{"cvv", "cvc", "security code"},
}

var passportKeywords = []string{
	"passport",
	"surname",
	"given name",
	"nationality",
	"date of birth",
	"place of birth",
	"sex",
	"passport no",
	"issuing authority",
}

var governmentIDKeywordFamilies = [][]string{
	{"driver license", "driver's license", "drivers license", "driving licence"},
	{"license no", "licence no", "lic no"},
	{"state id", "identification card"},
	{"dob"},
	{"height", "weight", "eyes", "hair"},
	{"class", "restrictions", "endorsements"},
	{"issued", "expires"},
}

// RefineDocumentType inspects extracted text for structural signatures of a
// specific document type. It returns the refined label and true when a
// signature matched. Refinement only ever improves the label; callers must
// not let a refinement miss veto an existing match decision.
func RefineDocumentType(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)

	if isCreditCard(lower) {
		return scanning.LabelCreditCard, true
	}
	if isPassport(lower) {
		return scanning.LabelPassport, true
	}
	if isGovernmentID(lower) {
		return LabelGovernmentID, true
	}
	return "", false
}

// isCreditCard matches on a card-length digit run, or at least two keyword
// families, or an expiration pattern co-occurring with a validity marker.
func isCreditCard(lower string) bool {
	if cardNumberRe.MatchString(lower) {
		return true
	}

	families := 0
	for _, family := range cardKeywordFamilies {
		if containsAny(lower, family) {
			families++
		}
	}
	if families >= 2 {
		return true
	}

	if cardExpiryRe.MatchString(lower) &&
		(strings.Contains(lower, "valid") || strings.Contains(lower, "exp")) {
		return true
	}
	return false
}

// isPassport matches on at least three passport keywords or the MRZ prefix.
func isPassport(lower string) bool {
	if passportMRZRe.MatchString(lower) {
		return true
	}

	hits := 0
	for _, kw := range passportKeywords {
		if strings.Contains(lower, kw) {
			hits++
			if hits >= 3 {
				return true
			}
		}
	}
	return false
}

// isGovernmentID matches on at least two keyword families.
func isGovernmentID(lower string) bool {
	families := 0
	for _, family := range governmentIDKeywordFamilies {
		if containsAny(lower, family) {
			families++
			if families >= 2 {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
