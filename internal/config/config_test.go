package config

import "testing"

func TestDefaultsAreValid(t *testing.T) {
	if err := defaults().Validate(); err != nil {
		t.Fatalf("defaults() must be valid, got: %v", err)
	}
}

func TestValidateRejectsZeroConcurrency(t *testing.T) {
	cfg := defaults()
	cfg.Concurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for concurrency=0")
	}
}

func TestValidateRejectsOutOfRangeResourceThreshold(t *testing.T) {
	cfg := defaults()
	cfg.ResourceThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for resource_threshold out of [0,1]")
	}
}

func TestRetryConfigProjection(t *testing.T) {
	cfg := defaults()
	rc := cfg.RetryConfig()
	if rc.MaxRetries != cfg.RetryMaxRetries || rc.BaseDelay != cfg.RetryBaseDelay {
		t.Fatalf("RetryConfig() did not project fields correctly: %+v", rc)
	}
}
