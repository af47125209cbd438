package job

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// jobSchema describes the inbound job payload. Unknown keys are allowed so
// producers can attach extra fields without breaking older workers.
const jobSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["job_id", "content_id", "object_id", "source_url", "mime_type"],
  "properties": {
    "job_id":     {"type": "string", "minLength": 1},
    "content_id": {"type": "string", "minLength": 1},
    "object_id":  {"type": "string", "minLength": 1},
    "owner_id":   {"type": "string"},
    "tenant_id":  {"type": "string"},
    "source_url": {"type": "string", "minLength": 1},
    "mime_type":  {"type": "string", "minLength": 1},
    "created_at": {"type": "string"},
    "metadata":   {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compile() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("job.schema.json", strings.NewReader(jobSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("job.schema.json")
	})
	return compiledSchema, schemaErr
}

// ValidatePayload checks data against the job payload schema.
func ValidatePayload(data []byte) error {
	schema, err := compile()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("payload does not match job schema: %w", err)
	}
	return nil
}

// Decode validates data against the job schema and unmarshals it into a Job.
func Decode(data []byte) (Job, error) {
	if err := ValidatePayload(data); err != nil {
		return Job{}, err
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	return j, nil
}
