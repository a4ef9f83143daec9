/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mongodb

import "time"

// Config holds connection settings for the MongoDB driver.
type Config struct {
	// URI is the connection string.
	// Default: "mongodb://localhost:27017"
	URI string

	// Database is the database every collection lives in.
	// Default: "docmapper"
	Database string

	// ConnectTimeout bounds connecting and the initial ping.
	// Default: 10s
	ConnectTimeout time.Duration

	// BatchSize is the cursor batch size for Find. Zero leaves the server default.
	BatchSize int32
}

// DefaultConfig returns settings for a local server.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "docmapper",
		ConnectTimeout: 10 * time.Second,
	}
}

// validate fills unset values with defaults.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.URI == "" {
		c.URI = def.URI
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.BatchSize < 0 {
		c.BatchSize = 0
	}
}
