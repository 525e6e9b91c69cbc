// ABOUTME: Hazard category taxonomy used by the classifier and generation hints
// ABOUTME: Keys follow the MLCommons-style S1..S13 hazard codes

package safety

// Categories maps hazard taxonomy keys to human-readable descriptions. The
// classifier returns a key; the generation step uses the description when
// synthesizing the cautious-handling hint.
var Categories = map[string]string{
	"S1":  "Violent Crimes",
	"S2":  "Non-Violent Crimes",
	"S3":  "Sex-Related Crimes",
	"S4":  "Child Sexual Exploitation",
	"S5":  "Defamation",
	"S6":  "Specialized Advice",
	"S7":  "Privacy",
	"S8":  "Intellectual Property",
	"S9":  "Indiscriminate Weapons",
	"S10": "Hate",
	"S11": "Suicide & Self-Harm",
	"S12": "Sexual Content",
	"S13": "Elections",
}

// CategoryDescription returns the description for a hazard key. Unknown keys
// come back verbatim so a classifier running a newer taxonomy still produces
// a usable hint.
func CategoryDescription(key string) string {
	if desc, ok := Categories[key]; ok {
		return desc
	}
	return key
}
