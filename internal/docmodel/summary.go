package docmodel

// SummaryMethod is the Summarizer's deterministic method selection result.
type SummaryMethod string

const (
	MethodSingle    SummaryMethod = "single"
	MethodMapReduce SummaryMethod = "map_reduce"
)

// SectionSummary is produced by the MAP phase for one splittable section.
type SectionSummary struct {
	Title           string `json:"title"`
	SummaryText     string `json:"summary_text"`
	OriginalLength  int    `json:"original_length"`
}

// DocumentSummaries is the Summarizer's output. method == single implies
// SectionSummaries is empty (P4).
type DocumentSummaries struct {
	DocumentSummary  string           `json:"document_summary"`
	SectionSummaries []SectionSummary `json:"section_summaries"`
	Method           SummaryMethod    `json:"method"`
	SectionsCount    int              `json:"sections_count"`
}

// QAType enumerates the allowed Q&A pair categories. Unknown values coerce
// to QATypeFactual (spec.md §4.3).
type QAType string

const (
	QATypeFactual    QAType = "factual"
	QATypeOverview   QAType = "overview"
	QATypeProcedural QAType = "procedural"
	QATypeComparison QAType = "comparison"
	QATypeReasoning  QAType = "reasoning"
)

// NormalizeQAType coerces an arbitrary string into one of the allowed QAType
// values, defaulting unknown values to factual.
func NormalizeQAType(s string) QAType {
	switch QAType(s) {
	case QATypeFactual, QATypeOverview, QATypeProcedural, QATypeComparison, QATypeReasoning:
		return QAType(s)
	default:
		return QATypeFactual
	}
}

// QAPair is one synthesized question/answer pair.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Type     QAType `json:"type"`
}
