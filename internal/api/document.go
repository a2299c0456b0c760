package api

import "encoding/json"

// documentSchemaVersion tags the wire format of Document. Bump it when the
// shape of stored documents changes; the cache drops entries written under
// older tags on sight.
const documentSchemaVersion = "1.0.0"

// Document is the record type the daemon caches: a free-form JSON object.
type Document map[string]any

// SchemaVersion implements cache.Record.
func (Document) SchemaVersion() string { return documentSchemaVersion }

// Encode implements cache.Record using the document's JSON form.
func (d Document) Encode() ([]byte, error) { return json.Marshal(d) }
