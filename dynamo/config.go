package dynamo

// maxTransactItems is the DynamoDB limit on items per
// TransactWriteItems call.
const maxTransactItems = 100

// Config holds configuration for the Context.
type Config struct {
	// Table is the DynamoDB table holding all records.
	// Default: "lattice_objects"
	Table string

	// MaxTransactItems caps the number of writes flushed in one
	// commit. A commit with more pending writes than this fails before
	// reaching DynamoDB.
	// Default: 100 (the DynamoDB transaction limit)
	// Max: 100
	MaxTransactItems int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Table:            "lattice_objects",
		MaxTransactItems: maxTransactItems,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "lattice_objects"
	}
	if c.MaxTransactItems < 1 {
		c.MaxTransactItems = maxTransactItems
	}
	if c.MaxTransactItems > maxTransactItems {
		c.MaxTransactItems = maxTransactItems
	}
}
