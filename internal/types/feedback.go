package types

// Grade values for a turn's feedback.
const (
	GradeGreen  = "green"
	GradeYellow = "yellow"
	GradeRed    = "red"
)

// HighlightToken colors one token or short phrase of the learner's sentence.
type HighlightToken struct {
	Token string `json:"token"`
	Color string `json:"color"`
}

// FeedbackRecord is the structured judgment produced per turn. After
// normalization every field is populated; OriginalTip is set only when an
// override replaced the generated tip.
type FeedbackRecord struct {
	Tip              string           `json:"tip"`
	Rewrite          string           `json:"rewrite"`
	ContextRelevance float64          `json:"context_relevance"`
	OffTopic         bool             `json:"off_topic"`
	MissingElements  []string         `json:"missing_elements"`
	Safety           string           `json:"safety"`
	Grade            string           `json:"grade"`
	HighlightTokens  []HighlightToken `json:"highlight_tokens"`
	OriginalTip      string           `json:"original_tip,omitempty"`
}

// ContextWindow is the bounded recent history supplied to the feedback
// generator and snapshotted onto the persisted turn. Both sides read
// oldest to newest.
type ContextWindow struct {
	PrevPartner []string `json:"prev_partner"`
	PrevUser    []string `json:"prev_user"`
}

func (w ContextWindow) Empty() bool {
	return len(w.PrevPartner) == 0 && len(w.PrevUser) == 0
}
