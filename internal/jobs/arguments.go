package jobs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Flat argument keys used by job steps in pipeline definitions
const (
	ArgNamePrefix    = "name_prefix"
	ArgRole          = "role"
	ArgImage         = "image"
	ArgInstanceType  = "instance_type"
	ArgInstanceCount = "instance_count"
	ArgVolumeGB      = "volume_gb"
	ArgMaxRuntime    = "max_runtime_seconds"
	ArgKMSKey        = "kms_key"
	ArgArguments     = "arguments"
	ArgModelName     = "model_name"
	ArgContentType   = "content_type"

	inputPrefix  = "input."
	outputPrefix = "output."
	hyperPrefix  = "hyperparameter."
	envPrefix    = "env."
	flagPrefix   = "flag."
)

// InputArg is the argument key of a named job input
func InputArg(name string) string { return inputPrefix + name }

// OutputArg is the argument key of a named job output
func OutputArg(name string) string { return outputPrefix + name }

// HyperParameterArg is the argument key of a training hyperparameter
func HyperParameterArg(name string) string { return hyperPrefix + name }

// EnvArg is the argument key of a container environment variable
func EnvArg(name string) string { return envPrefix + name }

// FlagArg is the argument key of a container flag, passed as "--<name> <value>"
func FlagArg(name string) string { return flagPrefix + name }

// SpecFromArguments builds a Spec from resolved flat step arguments
func SpecFromArguments(args map[string]string) (Spec, error) {
	spec := Spec{
		NamePrefix:   args[ArgNamePrefix],
		Role:         args[ArgRole],
		Image:        args[ArgImage],
		InstanceType: args[ArgInstanceType],
		KMSKey:       args[ArgKMSKey],
	}

	var err error
	if spec.InstanceCount, err = intArg(args, ArgInstanceCount, 1); err != nil {
		return Spec{}, err
	}
	if spec.VolumeGB, err = intArg(args, ArgVolumeGB, 30); err != nil {
		return Spec{}, err
	}
	seconds, err := intArg(args, ArgMaxRuntime, 0)
	if err != nil {
		return Spec{}, err
	}
	spec.MaxRuntime = time.Duration(seconds) * time.Second

	if raw := args[ArgArguments]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &spec.Arguments); err != nil {
			return Spec{}, fmt.Errorf("argument %s must be a JSON string list: %w", ArgArguments, err)
		}
	}

	for _, key := range SortedKeys(args) {
		if name := strings.TrimPrefix(key, flagPrefix); name != key {
			spec.Arguments = append(spec.Arguments, "--"+name, args[key])
		}
	}

	for key, value := range args {
		switch {
		case strings.HasPrefix(key, inputPrefix):
			spec.Inputs = put(spec.Inputs, strings.TrimPrefix(key, inputPrefix), value)
		case strings.HasPrefix(key, outputPrefix):
			spec.Outputs = put(spec.Outputs, strings.TrimPrefix(key, outputPrefix), value)
		case strings.HasPrefix(key, hyperPrefix):
			spec.HyperParameters = put(spec.HyperParameters, strings.TrimPrefix(key, hyperPrefix), value)
		case strings.HasPrefix(key, envPrefix):
			spec.Environment = put(spec.Environment, strings.TrimPrefix(key, envPrefix), value)
		}
	}

	if name := args[ArgModelName]; name != "" {
		spec.Transform = &TransformSpec{ModelName: name, ContentType: args[ArgContentType]}
	}
	return spec, nil
}

// SortedKeys returns map keys in order, for stable request building
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func put(m map[string]string, k, v string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	m[k] = v
	return m
}

func intArg(args map[string]string, key string, def int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("argument %s must be an integer, got %q", key, raw)
	}
	return n, nil
}
