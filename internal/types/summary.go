package types

// SectionSummary is the bounded digest of one generated section that is fed
// into the generation of the sections that follow it.
type SectionSummary struct {
	Heading string   `json:"heading"`
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
}
