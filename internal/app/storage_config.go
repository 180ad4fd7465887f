package app

import (
	"strings"

	"github.com/charlesng35/studiofolio/internal/storage"
)

// DriverName is the normalised storage driver.
func (c StorageConfig) DriverName() string {
	return strings.ToLower(strings.TrimSpace(c.Driver))
}

// S3StoreConfig converts StorageConfig into the S3 store parameters.
func (c StorageConfig) S3StoreConfig() storage.S3Config {
	return storage.S3Config{
		Bucket:          strings.TrimSpace(c.S3.Bucket),
		Region:          strings.TrimSpace(c.S3.Region),
		Endpoint:        strings.TrimSpace(c.S3.Endpoint),
		AccessKeyID:     strings.TrimSpace(c.S3.AccessKeyID),
		SecretAccessKey: c.S3.SecretAccessKey,
		PublicBaseURL:   strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/"),
		UsePathStyle:    c.S3.UsePathStyle,
		PartSize:        c.S3.PartSize,
		Concurrency:     c.S3.Concurrency,
	}
}

// BreakerStoreConfig converts the breaker settings.
func (c StorageConfig) BreakerStoreConfig() storage.BreakerConfig {
	return storage.BreakerConfig{
		MaxRequests:         c.Breaker.MaxRequests,
		Interval:            c.Breaker.Interval,
		Timeout:             c.Breaker.Timeout,
		ConsecutiveFailures: c.Breaker.ConsecutiveFailures,
	}
}
