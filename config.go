package gametime

import "github.com/BurntSushi/toml"

// Config carries the recognized analysis options: the machine model,
// the identifier conventions for synthesized variables, the annotation
// function names, and the SMT array modelling mode.
type Config struct {
	// Machine model.
	WordSize  uint `toml:"word_size"`
	BigEndian bool `toml:"big_endian"`

	// Identifier conventions for synthesized variables.
	ConstraintPrefix string `toml:"constraint_prefix"`
	TempVarPrefix    string `toml:"temp_var_prefix"`
	TempIndexPrefix  string `toml:"temp_index_prefix"`
	TempPtrPrefix    string `toml:"temp_ptr_prefix"`
	FieldPrefix      string `toml:"field_prefix"`
	AggregatePrefix  string `toml:"aggregate_prefix"`
	EFCPrefix        string `toml:"efc_prefix"`

	// Annotation function names recognized in the IR.
	AssumeFunc   string `toml:"assume_func"`
	SimulateFunc string `toml:"simulate_func"`

	// SMT array modelling mode: false selects nested array sorts, true
	// a single flat composite-index sort.
	FlatArrays bool `toml:"flat_arrays"`
}

// DefaultConfig returns the default configuration: a 32-bit
// little-endian machine and the standard identifier prefixes.
func DefaultConfig() Config {
	return Config{
		WordSize:         Width32,
		ConstraintPrefix: "__gtCONSTRAINT",
		TempVarPrefix:    "__gtTEMP",
		TempIndexPrefix:  "__gtINDEX",
		TempPtrPrefix:    "__gtPTR",
		FieldPrefix:      "__gtFIELD_",
		AggregatePrefix:  "__gtAGG_",
		EFCPrefix:        "__gtEFC_",
		AssumeFunc:       "gt_assume",
		SimulateFunc:     "gt_simulate",
	}
}

// LoadConfig reads a TOML configuration file. Unset keys inherit the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
