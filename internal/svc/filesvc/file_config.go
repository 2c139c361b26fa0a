package filesvc

// FileConfig holds configuration parameters for the file service.
type FileConfig struct {
	// MaxSize is the maximum allowed size of an uploaded file in bytes.
	// Default is 16GiB.
	MaxSize int64 `env:"MAX_SIZE" envDefault:"17179869184"`
}
