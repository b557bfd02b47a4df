// Package search implements hybrid retrieval over the fragment store.
//
// A query runs through three stages: BM25 lexical candidate generation
// (optionally widened by LLM paraphrases), cosine re-ranking of the bounded
// candidate pool against the query embedding, and Reciprocal Rank Fusion of
// the two rankings. A pure-semantic mode scans the whole corpus and exists
// for small or lexically adversarial corpora; it is never selected
// automatically.
package search
