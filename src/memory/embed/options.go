package embed

// FastEmbedOptions configures the local fastembed provider.
type FastEmbedOptions struct {
	Model     string
	CacheDir  string
	MaxLength int
	BatchSize int
}
