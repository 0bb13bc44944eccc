// Package translate defines the translation boundary of the pipeline
// and the cache-aware wrapper that keeps repeated text off the primary
// engine. The translation model itself sits behind the Translator
// interface: a child-process worker in production, a mock elsewhere.
package translate

// Result is one translation from a Translator.
type Result struct {
	Text       string
	Confidence float64
}

// Translator translates a single piece of text between two languages.
type Translator interface {
	Translate(text, sourceLang, targetLang string) (Result, error)
	Close() error
}
