package params

import (
	"reflect"
	"testing"

	"github.com/lei/pipeline-trigger/internal/models"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		base     map[string]interface{}
		override map[string]interface{}
		want     map[string]interface{}
	}{
		{
			"override wins",
			map[string]interface{}{"a": 1, "b": 2},
			map[string]interface{}{"a": 9},
			map[string]interface{}{"a": 9, "b": 2},
		},
		{
			"disjoint keys",
			map[string]interface{}{"a": 1},
			map[string]interface{}{"c": 3},
			map[string]interface{}{"a": 1, "c": 3},
		},
		{"nil base", nil, map[string]interface{}{"a": 1}, map[string]interface{}{"a": 1}},
		{"nil override", map[string]interface{}{"a": 1}, nil, map[string]interface{}{"a": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.base, tt.override)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Merge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	base := map[string]interface{}{"a": 1, "b": 2}
	override := map[string]interface{}{"a": 9}

	Merge(base, override)

	if base["a"] != 1 || len(base) != 2 {
		t.Errorf("Merge() mutated base: %v", base)
	}
	if len(override) != 1 {
		t.Errorf("Merge() mutated override: %v", override)
	}
}

func TestForSubmission(t *testing.T) {
	req := &models.SubmissionRequest{
		Config: models.SubmissionConfig{
			ProjectID:     "cfg-project",
			Location:      "europe-west4",
			StagingBucket: "gs://bucket",
		},
		Parameters: map[string]interface{}{
			"project_id": "caller-project",
			"bq_source":  "bq://p.beans.beans1",
		},
	}

	got := ForSubmission(req)
	want := map[string]interface{}{
		"project_id": "cfg-project",
		"location":   "europe-west4",
		"bq_source":  "bq://p.beans.beans1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ForSubmission() = %v, want %v", got, want)
	}
	if _, leaked := got["staging_bucket"]; leaked {
		t.Errorf("ForSubmission() should only forward project_id and location")
	}
}

func TestWithDefaults(t *testing.T) {
	defaults := map[string]interface{}{"email_addresses": []string{"ops@example.com"}, "auc_threshold": 0.9}
	values := map[string]interface{}{"auc_threshold": 0.95}

	got := WithDefaults(defaults, values)
	if got["auc_threshold"] != 0.95 {
		t.Errorf("WithDefaults() auc_threshold = %v, want caller value 0.95", got["auc_threshold"])
	}
	if _, ok := got["email_addresses"]; !ok {
		t.Errorf("WithDefaults() missing default email_addresses")
	}
}
