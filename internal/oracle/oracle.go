package oracle

import "context"

// Kind classifies what the oracle concluded about an article.
type Kind int

const (
	// KindProcessed means the article matched the filter and carries a
	// translated title and summary.
	KindProcessed Kind = iota

	// KindIrrelevant means the article did not match the filter.
	KindIrrelevant

	// KindFailed means no verdict could be produced; Reason says why.
	KindFailed
)

// Request carries one article to classify and summarize together with
// the settings that shape the verdict.
type Request struct {
	Title         string
	Body          string
	Criterion     string
	Language      string
	Model         string
	FallbackModel string
}

// Outcome is the oracle's verdict on one article. Failures are data,
// not errors: the pipeline decides what to persist for each kind.
type Outcome struct {
	Kind    Kind
	Title   string
	Summary string
	Reason  string
}

// Processed builds a successful outcome.
func Processed(title, summary string) Outcome {
	return Outcome{Kind: KindProcessed, Title: title, Summary: summary}
}

// Irrelevant builds a filtered-out outcome.
func Irrelevant() Outcome {
	return Outcome{Kind: KindIrrelevant}
}

// Failed builds an outcome for a verdict that could not be produced.
func Failed(reason string) Outcome {
	return Outcome{Kind: KindFailed, Reason: reason}
}

// Oracle classifies and summarizes articles.
type Oracle interface {
	Process(ctx context.Context, req Request) Outcome
}
