package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDefinitionShape(t *testing.T) {
	g := trainingGraph(t)

	data, err := EncodeDefinition(g)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, DefinitionVersion, raw["Version"])

	params := raw["Parameters"].([]interface{})
	require.Len(t, params, 2)
	require.Equal(t, map[string]interface{}{"Name": "input_file_name", "Type": "String"}, params[0])
	require.Equal(t, float64(1), params[1].(map[string]interface{})["DefaultValue"])

	steps := raw["Steps"].([]interface{})
	require.Len(t, steps, 5, "nested steps stay inside their branch")

	train := steps[1].(map[string]interface{})
	require.Equal(t, "TrainModel", train["Name"])
	require.Equal(t,
		map[string]interface{}{"Get": "Steps.ProcessingJob.Outputs.train_data"},
		train["Arguments"].(map[string]interface{})["train"])

	cond := steps[4].(map[string]interface{})["Arguments"].(map[string]interface{})
	require.Empty(t, cond["IfSteps"])
	elseSteps := cond["ElseSteps"].([]interface{})
	require.Equal(t, "RegisterModel", elseSteps[0].(map[string]interface{})["Name"])
	condition := cond["Conditions"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, "In", condition["Type"])
	require.Equal(t, []interface{}{"Failed", "Stopping", "Stopped"}, condition["Values"])
}

func TestEncodeDefinitionIsDeterministic(t *testing.T) {
	first, err := EncodeDefinition(trainingGraph(t))
	require.NoError(t, err)
	second, err := EncodeDefinition(trainingGraph(t))
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}

func TestDecodeDefinitionRebuildsGraph(t *testing.T) {
	original := trainingGraph(t)
	data, err := EncodeDefinition(original)
	require.NoError(t, err)

	decoded, err := DecodeDefinition("TrainingPipeline", data)
	require.NoError(t, err)
	require.Equal(t, original.Len(), decoded.Len())

	ordered, err := decoded.TopologicalOrder()
	require.NoError(t, err)
	want, err := original.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, names(want), names(ordered))

	count, ok := decoded.Parameter("training_instance_count")
	require.True(t, ok)
	require.Equal(t, "1", count.Default)
	require.True(t, count.HasDefault)

	input, ok := decoded.Parameter("input_file_name")
	require.True(t, ok)
	require.False(t, input.HasDefault)

	step, ok := decoded.Lookup("TrainModel")
	require.True(t, ok)
	ref, isRef := step.Inputs["train"].Ref()
	require.True(t, isRef)
	require.Equal(t, Ref{Step: "ProcessingJob", Output: "train_data"}, ref)

	cond, ok := decoded.Lookup("CheckCompileNeoError")
	require.True(t, ok)
	require.True(t, cond.Condition.Predicate.Holds("Stopped"))

	reencoded, err := EncodeDefinition(decoded)
	require.NoError(t, err)
	require.JSONEq(t, string(data), string(reencoded))
}

func TestDecodeDefinitionRejectsUnknownVersion(t *testing.T) {
	_, err := DecodeDefinition("p", []byte(`{"Version":"1999-01-01","Parameters":[],"Steps":[]}`))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestDecodeDefinitionRejectsBadExpressions(t *testing.T) {
	_, err := DecodeDefinition("p", []byte(`{"Version":"2020-12-01","Parameters":[],
		"Steps":[{"Name":"a","Type":"Lambda","Arguments":{"x":{"Get":"Execution.StartTime"}}}]}`))
	require.Error(t, err)
}
