package requests

import (
	"github.com/foomo/snippetserver/snippet"
)

// List - all snippets
type List struct{}

// Get - a single snippet
type Get struct {
	ID string `json:"id"`
}

// Create - a new snippet
type Create struct {
	Snippet snippet.Input `json:"snippet"`
}

// Update - merge the set fields into an existing snippet
type Update struct {
	ID    string        `json:"id"`
	Patch snippet.Patch `json:"patch"`
}

// Delete - remove a snippet, unknown ids are ignored
type Delete struct {
	ID string `json:"id"`
}

// Duplicate - copy a snippet
type Duplicate struct {
	ID string `json:"id"`
}

// Search - case insensitive search on name, description and tags
type Search struct {
	Query string `json:"query"`
}

// Completions - snippets for a document language
type Completions struct {
	Language string `json:"language"`
}

// Folders - snippets grouped by folder
type Folders struct{}

// Import - add the snippets in data
type Import struct {
	// json or yaml, defaults to json
	Format string `json:"format"`
	Data   string `json:"data"`
}

// Export - serialize all snippets
type Export struct {
	// json or yaml, defaults to json
	Format string `json:"format"`
}
