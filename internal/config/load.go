// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lywaf/lywaf/internal/errors"
)

// LoadOptions controls how LoadFile decodes and validates a document.
type LoadOptions struct {
	// SkipValidate loads the document without running Config.Validate,
	// so parse errors can be seen separately from validation errors.
	SkipValidate bool
}

// LoadResult is what a successful LoadFile call returns.
type LoadResult struct {
	Config *Config
	Path   string
}

// LoadFile parses and decodes an HCL document at path into a Config,
// defaulting unset fields and validating the result unless
// opts.SkipValidate is set.
func LoadFile(path string, opts LoadOptions) (*LoadResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindNotFound, "reading config file")
	}
	return LoadBytes(raw, path, opts)
}

// LoadBytes decodes raw HCL source, as if read from filename, into a
// Config.
func LoadBytes(raw []byte, filename string, opts LoadOptions) (*LoadResult, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(raw, filename)
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.KindValidation, "parsing config")
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.KindValidation, "decoding config")
	}

	applyDefaults(&cfg)

	if !opts.SkipValidate {
		if err := cfg.Validate(); err != nil {
			return nil, errors.Wrap(err, errors.KindValidation, "validating config")
		}
	}

	return &LoadResult{Config: &cfg, Path: filename}, nil
}

// applyDefaults fills in the defaults documented on Config's HCL tags
// that gohcl itself leaves zero-valued.
func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = CurrentSchemaVersion
	}
	for i := range cfg.Clusters {
		if cfg.Clusters[i].LBPolicy == "" {
			cfg.Clusters[i].LBPolicy = "WeightedRoundRobin"
		}
		for j := range cfg.Clusters[i].Destinations {
			if cfg.Clusters[i].Destinations[j].Weight == 0 {
				cfg.Clusters[i].Destinations[j].Weight = 1
			}
		}
	}
	for i := range cfg.RateLimits {
		if cfg.RateLimits[i].RejectStatus == 0 {
			cfg.RateLimits[i].RejectStatus = 429
		}
	}
}
