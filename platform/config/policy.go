package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConsumerPolicy bounds how a stream consumer retries one message.
type ConsumerPolicy struct {
	MaxAttempts    int           `yaml:"maxAttempts"`
	HandlerTimeout time.Duration `yaml:"handlerTimeout"`
	BaseBackoff    time.Duration `yaml:"baseBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
}

// Merge fills zero fields of p from fallback.
func (p ConsumerPolicy) Merge(fallback ConsumerPolicy) ConsumerPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = fallback.MaxAttempts
	}
	if p.HandlerTimeout <= 0 {
		p.HandlerTimeout = fallback.HandlerTimeout
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = fallback.BaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = fallback.MaxBackoff
	}
	return p
}

// PolicyFile is the YAML layout of CONSUMER_POLICY_FILE.
//
//	default:
//	  maxAttempts: 5
//	  handlerTimeout: 30s
//	topics:
//	  VisitUpdated:
//	    maxAttempts: 8
type PolicyFile struct {
	Default ConsumerPolicy            `yaml:"default"`
	Topics  map[string]ConsumerPolicy `yaml:"topics"`
}

// LoadPolicyFile reads and decodes a consumer policy file.
func LoadPolicyFile(path string) (PolicyFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PolicyFile{}, fmt.Errorf("read consumer policy file: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodes a consumer policy document.
func ParsePolicy(raw []byte) (PolicyFile, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return PolicyFile{}, fmt.Errorf("decode consumer policy: %w", err)
	}
	for topic, policy := range file.Topics {
		if policy.MaxAttempts < 0 {
			return PolicyFile{}, fmt.Errorf("topic %s: maxAttempts must not be negative", topic)
		}
	}
	return file, nil
}
