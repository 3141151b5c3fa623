package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationDocID(t *testing.T) {
	tests := []struct {
		name     string
		sourceID string
		method   string
		path     string
		expected string
	}{
		{"simple", "petstore", "GET", "/pets", "op:petstore:GET:/pets"},
		{"lowercase method is uppercased", "petstore", "get", "/pets", "op:petstore:GET:/pets"},
		{"mixed case method", "s1", "PaTcH", "/a/b", "op:s1:PATCH:/a/b"},
		{"path parameters preserved", "s1", "DELETE", "/pets/{petId}", "op:s1:DELETE:/pets/{petId}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, OperationDocID(tt.sourceID, tt.method, tt.path))
		})
	}
}

func TestOperationDocID_Idempotent(t *testing.T) {
	first := OperationDocID("petstore", "post", "/pets")
	second := OperationDocID("petstore", "POST", "/pets")
	assert.Equal(t, first, second)
}

func TestSchemaDocID(t *testing.T) {
	assert.Equal(t, "schema:petstore:Pet", SchemaDocID("petstore", "Pet"))
	assert.Equal(t, SchemaDocID("s1", "Error"), SchemaDocID("s1", "Error"))
}
