package responses

// Update - result of a mutation
type Update struct {
	// did it work or not
	Success bool `json:"success"`
}

// Import - how many snippets were added
type Import struct {
	Imported int `json:"imported"`
}

// Export - serialized snippets
type Export struct {
	Format string `json:"format"`
	Data   string `json:"data"`
}
