package silver

import (
	"strings"

	"medallion/internal/bronze"
)

var lineBreaks = strings.NewReplacer("\r", "", "\n", "")

func normalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(lineBreaks.Replace(raw)))
}

// MaritalStatus maps S/M to Single/Married
func MaritalStatus(raw string) string {
	switch normalizeCode(raw) {
	case "S":
		return "Single"
	case "M":
		return "Married"
	default:
		return NotAvailable
	}
}

// Gender maps the CRM F/M code
func Gender(raw string) string {
	switch normalizeCode(raw) {
	case "F":
		return "Female"
	case "M":
		return "Male"
	default:
		return NotAvailable
	}
}

// ProductLine maps the CRM product line code
func ProductLine(raw string) string {
	switch normalizeCode(raw) {
	case "M":
		return "Mountain"
	case "R":
		return "Road"
	case "S":
		return "Sports"
	case "T":
		return "Touring"
	default:
		return NotAvailable
	}
}

// ERPGender maps ERP gender codes and words
func ERPGender(raw string) string {
	switch normalizeCode(raw) {
	case "F", "FEMALE":
		return "Female"
	case "M", "MALE":
		return "Male"
	default:
		return NotAvailable
	}
}

// Country maps country codes. Null markers become N/A; unknown values pass
// through trimmed.
func Country(raw string) string {
	trimmed := strings.TrimSpace(lineBreaks.Replace(raw))
	if bronze.IsNull(trimmed) {
		return NotAvailable
	}
	switch strings.ToUpper(trimmed) {
	case "DE":
		return "Germany"
	case "US", "USA":
		return "United States"
	default:
		return trimmed
	}
}

// cleanIdentifier removes line breaks and surrounding whitespace
func cleanIdentifier(raw string) string {
	return strings.TrimSpace(lineBreaks.Replace(raw))
}
