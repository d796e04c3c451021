// Package extraction turns resolved record content into indexed chunks.
//
// Every supported content kind has an entry in the extraction table. An
// entry decodes or converts the content to plain text, after which the
// shared indexing step splits the text, embeds the chunks, replaces any
// chunks stored for the same virtual record and marks the record
// COMPLETED. CPU-bound work runs on a bounded worker pool.
package extraction
