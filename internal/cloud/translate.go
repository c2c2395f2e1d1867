package cloud

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/brunopistone/sm-iot-end-to-end/internal/engine"
	"github.com/brunopistone/sm-iot-end-to-end/internal/gate"
	"github.com/brunopistone/sm-iot-end-to-end/internal/jobs"
	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
	"github.com/brunopistone/sm-iot-end-to-end/internal/pipeline"
)

const defaultVolumeGB = 30

// Translate renders a graph as a SageMaker pipeline definition document.
// Flat job arguments become SageMaker request shapes and step output references
// become the property paths of the referenced step type.
func Translate(g *pipeline.Graph) ([]byte, error) {
	ordered, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	t := &translator{graph: g}
	params := make([]map[string]interface{}, 0, len(g.Parameters))
	for _, p := range g.Parameters {
		param := map[string]interface{}{"Name": p.Name, "Type": string(p.Type)}
		if p.Type == "" {
			param["Type"] = string(pipeline.ParameterString)
		}
		if p.HasDefault {
			param["DefaultValue"] = p.Default
			if p.Type == pipeline.ParameterInteger {
				n, err := strconv.Atoi(p.Default)
				if err != nil {
					return nil, fmt.Errorf("parameter %s default %q is not an integer", p.Name, p.Default)
				}
				param["DefaultValue"] = n
			}
		}
		params = append(params, param)
	}

	steps := make([]map[string]interface{}, 0, len(ordered))
	for _, step := range ordered {
		if _, _, nested := g.Enclosing(step.Name); nested {
			continue
		}
		s, err := t.step(step)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}

	doc := map[string]interface{}{
		"Version":    pipeline.DefinitionVersion,
		"Parameters": params,
		"Steps":      steps,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sagemaker definition: %w", err)
	}
	return data, nil
}

type translator struct {
	graph *pipeline.Graph
}

func (t *translator) step(step *pipeline.Step) (map[string]interface{}, error) {
	out := map[string]interface{}{"Name": step.Name, "Type": string(step.Type)}
	if len(step.DependsOn) > 0 {
		out["DependsOn"] = step.DependsOn
	}

	var args map[string]interface{}
	var err error
	switch step.Type {
	case pipeline.TypeProcessing:
		args, err = t.processing(step)
	case pipeline.TypeTraining:
		args, err = t.training(step)
	case pipeline.TypeTransform:
		args, err = t.transform(step)
	case pipeline.TypeRegisterModel:
		args, err = t.register(step)
	case pipeline.TypeCondition:
		args, err = t.condition(step)
	case pipeline.TypeLambda:
		err = t.lambda(step, out)
		if err == nil {
			return out, nil
		}
	default:
		err = fmt.Errorf("unsupported step type %q", step.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", step.Name, err)
	}
	out["Arguments"] = args
	return out, nil
}

// jobArgs groups the flat arguments of a job step by family
type jobArgs struct {
	plain   map[string]pipeline.Value
	inputs  map[string]pipeline.Value
	outputs map[string]pipeline.Value
	hyper   map[string]pipeline.Value
	env     map[string]pipeline.Value
	flags   map[string]pipeline.Value
}

func group(inputs map[string]pipeline.Value) jobArgs {
	a := jobArgs{
		plain:   map[string]pipeline.Value{},
		inputs:  map[string]pipeline.Value{},
		outputs: map[string]pipeline.Value{},
		hyper:   map[string]pipeline.Value{},
		env:     map[string]pipeline.Value{},
		flags:   map[string]pipeline.Value{},
	}
	families := []struct {
		prefix string
		into   map[string]pipeline.Value
	}{
		{jobs.InputArg(""), a.inputs},
		{jobs.OutputArg(""), a.outputs},
		{jobs.HyperParameterArg(""), a.hyper},
		{jobs.EnvArg(""), a.env},
		{jobs.FlagArg(""), a.flags},
	}
	for key, v := range inputs {
		matched := false
		for _, f := range families {
			if name, ok := strings.CutPrefix(key, f.prefix); ok {
				f.into[name] = v
				matched = true
				break
			}
		}
		if !matched {
			a.plain[key] = v
		}
	}
	return a
}

func (t *translator) processing(step *pipeline.Step) (map[string]interface{}, error) {
	a := group(step.Inputs)
	count, err := t.integer(a.plain, jobs.ArgInstanceCount, 1)
	if err != nil {
		return nil, err
	}
	volume, err := t.integer(a.plain, jobs.ArgVolumeGB, defaultVolumeGB)
	if err != nil {
		return nil, err
	}

	containerArgs := make([]interface{}, 0)
	if v, ok := a.plain[jobs.ArgArguments]; ok {
		lit, isLit := v.Literal()
		if !isLit {
			return nil, fmt.Errorf("argument %s must be a literal JSON list", jobs.ArgArguments)
		}
		var list []string
		if err := json.Unmarshal([]byte(lit), &list); err != nil {
			return nil, fmt.Errorf("argument %s must be a JSON string list: %w", jobs.ArgArguments, err)
		}
		for _, item := range list {
			containerArgs = append(containerArgs, item)
		}
	}
	for _, name := range sortedNames(a.flags) {
		v, err := t.value(a.flags[name])
		if err != nil {
			return nil, err
		}
		containerArgs = append(containerArgs, "--"+name, v)
	}

	cluster := map[string]interface{}{"InstanceCount": count, "VolumeSizeInGB": volume}
	if err := t.set(cluster, "InstanceType", a.plain, jobs.ArgInstanceType); err != nil {
		return nil, err
	}
	app := map[string]interface{}{"ContainerArguments": containerArgs}
	if err := t.set(app, "ImageUri", a.plain, jobs.ArgImage); err != nil {
		return nil, err
	}
	args := map[string]interface{}{
		"ProcessingResources": map[string]interface{}{"ClusterConfig": cluster},
		"AppSpecification":    app,
	}
	if err := t.set(args, "RoleArn", a.plain, jobs.ArgRole); err != nil {
		return nil, err
	}

	processingInputs := make([]interface{}, 0, len(a.inputs))
	for _, name := range sortedNames(a.inputs) {
		uri, err := t.value(a.inputs[name])
		if err != nil {
			return nil, err
		}
		processingInputs = append(processingInputs, map[string]interface{}{
			"InputName":  name,
			"AppManaged": false,
			"S3Input": map[string]interface{}{
				"S3Uri":       uri,
				"LocalPath":   processingRoot + name,
				"S3DataType":  "S3Prefix",
				"S3InputMode": "File",
			},
		})
	}
	args["ProcessingInputs"] = processingInputs

	if len(a.outputs) > 0 {
		outputs := make([]interface{}, 0, len(a.outputs))
		for _, name := range sortedNames(a.outputs) {
			uri, err := t.value(a.outputs[name])
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, map[string]interface{}{
				"OutputName": name,
				"AppManaged": false,
				"S3Output": map[string]interface{}{
					"S3Uri":        uri,
					"LocalPath":    processingRoot + name,
					"S3UploadMode": "EndOfJob",
				},
			})
		}
		config := map[string]interface{}{"Outputs": outputs}
		if err := t.set(config, "KmsKeyId", a.plain, jobs.ArgKMSKey); err != nil {
			return nil, err
		}
		args["ProcessingOutputConfig"] = config
	}

	if _, ok := a.plain[jobs.ArgMaxRuntime]; ok {
		runtime, err := t.integer(a.plain, jobs.ArgMaxRuntime, 0)
		if err != nil {
			return nil, err
		}
		args["StoppingCondition"] = map[string]interface{}{"MaxRuntimeInSeconds": runtime}
	}
	if len(a.env) > 0 {
		env, err := t.values(a.env)
		if err != nil {
			return nil, err
		}
		args["Environment"] = env
	}
	return args, nil
}

func (t *translator) training(step *pipeline.Step) (map[string]interface{}, error) {
	a := group(step.Inputs)
	count, err := t.integer(a.plain, jobs.ArgInstanceCount, 1)
	if err != nil {
		return nil, err
	}
	volume, err := t.integer(a.plain, jobs.ArgVolumeGB, defaultVolumeGB)
	if err != nil {
		return nil, err
	}
	runtime, err := t.integer(a.plain, jobs.ArgMaxRuntime, 86400)
	if err != nil {
		return nil, err
	}

	algorithm := map[string]interface{}{"TrainingInputMode": "File"}
	if err := t.set(algorithm, "TrainingImage", a.plain, jobs.ArgImage); err != nil {
		return nil, err
	}
	resources := map[string]interface{}{"InstanceCount": count, "VolumeSizeInGB": volume}
	if err := t.set(resources, "InstanceType", a.plain, jobs.ArgInstanceType); err != nil {
		return nil, err
	}
	output := map[string]interface{}{}
	if err := t.set(output, "S3OutputPath", a.outputs, jobs.OutputModel); err != nil {
		return nil, err
	}
	if err := t.set(output, "KmsKeyId", a.plain, jobs.ArgKMSKey); err != nil {
		return nil, err
	}

	args := map[string]interface{}{
		"AlgorithmSpecification": algorithm,
		"ResourceConfig":         resources,
		"OutputDataConfig":       output,
		"StoppingCondition":      map[string]interface{}{"MaxRuntimeInSeconds": runtime},
	}
	if err := t.set(args, "RoleArn", a.plain, jobs.ArgRole); err != nil {
		return nil, err
	}

	channels := make([]interface{}, 0, len(a.inputs))
	for _, name := range sortedNames(a.inputs) {
		uri, err := t.value(a.inputs[name])
		if err != nil {
			return nil, err
		}
		channels = append(channels, map[string]interface{}{
			"ChannelName": name,
			"DataSource": map[string]interface{}{
				"S3DataSource": map[string]interface{}{
					"S3DataType":             "S3Prefix",
					"S3Uri":                  uri,
					"S3DataDistributionType": "FullyReplicated",
				},
			},
		})
	}
	args["InputDataConfig"] = channels

	if len(a.hyper) > 0 {
		hyper, err := t.values(a.hyper)
		if err != nil {
			return nil, err
		}
		args["HyperParameters"] = hyper
	}
	if len(a.env) > 0 {
		env, err := t.values(a.env)
		if err != nil {
			return nil, err
		}
		args["Environment"] = env
	}
	return args, nil
}

func (t *translator) transform(step *pipeline.Step) (map[string]interface{}, error) {
	a := group(step.Inputs)
	count, err := t.integer(a.plain, jobs.ArgInstanceCount, 1)
	if err != nil {
		return nil, err
	}

	source := map[string]interface{}{"S3DataType": "S3Prefix"}
	if err := t.set(source, "S3Uri", a.inputs, "input"); err != nil {
		return nil, err
	}
	input := map[string]interface{}{"DataSource": map[string]interface{}{"S3DataSource": source}}
	if err := t.set(input, "ContentType", a.plain, jobs.ArgContentType); err != nil {
		return nil, err
	}
	output := map[string]interface{}{}
	if err := t.set(output, "S3OutputPath", a.outputs, "output"); err != nil {
		return nil, err
	}
	resources := map[string]interface{}{"InstanceCount": count}
	if err := t.set(resources, "InstanceType", a.plain, jobs.ArgInstanceType); err != nil {
		return nil, err
	}

	args := map[string]interface{}{
		"TransformInput":     input,
		"TransformOutput":    output,
		"TransformResources": resources,
	}
	if err := t.set(args, "ModelName", a.plain, jobs.ArgModelName); err != nil {
		return nil, err
	}
	return args, nil
}

func (t *translator) register(step *pipeline.Step) (map[string]interface{}, error) {
	container := map[string]interface{}{}
	if err := t.set(container, "Image", step.Inputs, engine.ArgInferenceImage); err != nil {
		return nil, err
	}
	if err := t.set(container, "ModelDataUrl", step.Inputs, engine.ArgModelData); err != nil {
		return nil, err
	}
	spec := map[string]interface{}{
		"Containers":                 []interface{}{container},
		"SupportedContentTypes":      literalList(step.Inputs[engine.ArgContentTypes]),
		"SupportedResponseMIMETypes": literalList(step.Inputs[engine.ArgResponseTypes]),
	}
	args := map[string]interface{}{"InferenceSpecification": spec}
	if err := t.set(args, "ModelPackageGroupName", step.Inputs, engine.ArgModelPackageGroup); err != nil {
		return nil, err
	}
	if err := t.set(args, "ModelApprovalStatus", step.Inputs, engine.ArgApprovalStatus); err != nil {
		return nil, err
	}
	return args, nil
}

func (t *translator) condition(step *pipeline.Step) (map[string]interface{}, error) {
	c := step.Condition
	if c == nil {
		return nil, fmt.Errorf("condition step has no condition")
	}
	subject, err := t.value(c.Subject)
	if err != nil {
		return nil, err
	}

	var cond map[string]interface{}
	if c.Predicate.Kind() == gate.KindEquals {
		cond = map[string]interface{}{"Type": gate.KindEquals, "LeftValue": subject, "RightValue": c.Predicate.Values()[0]}
	} else {
		cond = map[string]interface{}{"Type": c.Predicate.Kind(), "QueryValue": subject, "Values": conditionValues(c.Predicate.Values())}
	}

	ifSteps, err := t.branch(c.IfSteps)
	if err != nil {
		return nil, err
	}
	elseSteps, err := t.branch(c.ElseSteps)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"Conditions": []interface{}{cond},
		"IfSteps":    ifSteps,
		"ElseSteps":  elseSteps,
	}, nil
}

// conditionValues adds the provider spelling of job statuses (FAILED, STOPPED, ...).
// Remote check functions report raw provider statuses and the condition compares exactly.
func conditionValues(values []string) []string {
	out := make([]string, 0, 2*len(values))
	seen := make(map[string]bool, 2*len(values))
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range values {
		add(v)
		if model.JobStatus(v).Known() {
			add(strings.ToUpper(v))
		}
	}
	return out
}

func (t *translator) branch(steps []*pipeline.Step) ([]interface{}, error) {
	out := make([]interface{}, 0, len(steps))
	for _, s := range steps {
		translated, err := t.step(s)
		if err != nil {
			return nil, err
		}
		out = append(out, translated)
	}
	return out, nil
}

func (t *translator) lambda(step *pipeline.Step, out map[string]interface{}) error {
	arnValue, ok := step.Inputs[pipeline.FunctionArnArg]
	arn, isLit := arnValue.Literal()
	if !ok || !isLit || arn == "" {
		return fmt.Errorf("lambda step needs a literal %s", pipeline.FunctionArnArg)
	}

	args := make(map[string]interface{}, len(step.Inputs))
	for name, v := range step.Inputs {
		if name == pipeline.FunctionArnArg || name == pipeline.FunctionNameArg {
			continue
		}
		encoded, err := t.value(v)
		if err != nil {
			return err
		}
		args[name] = encoded
	}

	outputs := make([]interface{}, 0, len(step.Outputs))
	for _, name := range step.Outputs {
		outputs = append(outputs, map[string]interface{}{"OutputName": name, "OutputType": "String"})
	}
	out["FunctionArn"] = arn
	out["Arguments"] = args
	out["OutputParameters"] = outputs
	return nil
}

// value encodes a literal, a parameter reference or a step property reference
func (t *translator) value(v pipeline.Value) (interface{}, error) {
	if param, ok := v.Parameter(); ok {
		return map[string]interface{}{"Get": "Parameters." + param}, nil
	}
	if ref, ok := v.Ref(); ok {
		path, err := t.property(ref)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"Get": path}, nil
	}
	lit, _ := v.Literal()
	return lit, nil
}

// property maps a step output to the SageMaker property path exposing it
func (t *translator) property(ref pipeline.Ref) (string, error) {
	step, ok := t.graph.Lookup(ref.Step)
	if !ok {
		return "", fmt.Errorf("%s does not exist", ref)
	}
	base := "Steps." + ref.Step

	switch step.Type {
	case pipeline.TypeLambda:
		return fmt.Sprintf("%s.OutputParameters['%s']", base, ref.Output), nil
	case pipeline.TypeProcessing:
		if ref.Output == engine.JobOutputName {
			return base + ".ProcessingJobName", nil
		}
		return fmt.Sprintf("%s.ProcessingOutputConfig.Outputs['%s'].S3Output.S3Uri", base, ref.Output), nil
	case pipeline.TypeTraining:
		switch ref.Output {
		case engine.JobOutputName:
			return base + ".TrainingJobName", nil
		case jobs.OutputModelArtifacts:
			return base + ".ModelArtifacts.S3ModelArtifacts", nil
		}
	case pipeline.TypeTransform:
		switch ref.Output {
		case engine.JobOutputName:
			return base + ".TransformJobName", nil
		case "output":
			return base + ".TransformOutput.S3OutputPath", nil
		}
	case pipeline.TypeRegisterModel:
		switch ref.Output {
		case engine.OutputModelPackageArn:
			return base + ".ModelPackageArn", nil
		case engine.OutputModelPackageVersion:
			return base + ".ModelPackageVersion", nil
		}
	}
	return "", fmt.Errorf("%s has no sagemaker property", ref)
}

func (t *translator) values(m map[string]pipeline.Value) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		encoded, err := t.value(v)
		if err != nil {
			return nil, err
		}
		out[k] = encoded
	}
	return out, nil
}

// set copies an optional argument into dst under field
func (t *translator) set(dst map[string]interface{}, field string, args map[string]pipeline.Value, key string) error {
	v, ok := args[key]
	if !ok {
		return nil
	}
	encoded, err := t.value(v)
	if err != nil {
		return err
	}
	dst[field] = encoded
	return nil
}

// integer encodes a numeric argument, parsing literals
func (t *translator) integer(args map[string]pipeline.Value, key string, def int) (interface{}, error) {
	v, ok := args[key]
	if !ok {
		return def, nil
	}
	lit, isLit := v.Literal()
	if !isLit {
		return t.value(v)
	}
	if lit == "" {
		return def, nil
	}
	n, err := strconv.Atoi(lit)
	if err != nil {
		return nil, fmt.Errorf("argument %s must be an integer, got %q", key, lit)
	}
	return n, nil
}

func literalList(v pipeline.Value) []string {
	lit, _ := v.Literal()
	out := make([]string, 0)
	for _, item := range strings.Split(lit, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func sortedNames(m map[string]pipeline.Value) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
