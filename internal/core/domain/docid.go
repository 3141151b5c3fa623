package domain

import "strings"

// OperationDocID computes the document id for an operation doc.
// The id is a pure function of its key fields: identical input always
// yields an identical id, so ids double as natural foreign keys into
// the full-text index. The method is uppercased.
func OperationDocID(sourceID, method, path string) string {
	return "op:" + sourceID + ":" + strings.ToUpper(method) + ":" + path
}

// SchemaDocID computes the document id for a schema doc.
func SchemaDocID(sourceID, schemaName string) string {
	return "schema:" + sourceID + ":" + schemaName
}
