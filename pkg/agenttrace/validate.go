package agenttrace

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
)

// recordSchema is the structural JSON Schema for a single record.
// Semantic checks that JSON Schema cannot express portably (uuid syntax,
// RFC 3339 parsing, line ordering) are performed in ValidateTrace.
const recordSchema = `{
  "type": "object",
  "required": ["version", "id", "timestamp"],
  "properties": {
    "version": {"type": "string", "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+$"},
    "id": {"type": "string", "minLength": 1},
    "timestamp": {"type": "string", "minLength": 1},
    "vcs": {
      "type": "object",
      "properties": {
        "type": {"type": "string"},
        "revision": {"type": "string"}
      }
    },
    "tool": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "version": {"type": "string"}
      }
    },
    "files": {"type": ["array", "null"], "items": {"$ref": "#/$defs/file"}},
    "metadata": {"type": ["object", "null"]}
  },
  "$defs": {
    "contributor": {
      "type": "object",
      "properties": {
        "type": {"enum": ["human", "ai", "mixed", "unknown"]},
        "model_id": {"type": "string"}
      }
    },
    "range": {
      "type": "object",
      "required": ["start_line", "end_line"],
      "properties": {
        "start_line": {"type": "integer", "minimum": 1},
        "end_line": {"type": "integer", "minimum": 1},
        "content_hash": {"type": "string"},
        "contributor": {"$ref": "#/$defs/contributor"}
      }
    },
    "related_resource": {
      "type": "object",
      "properties": {
        "type": {"type": "string"},
        "url": {"type": "string"}
      }
    },
    "conversation": {
      "type": "object",
      "properties": {
        "url": {"type": "string"},
        "contributor": {"$ref": "#/$defs/contributor"},
        "ranges": {"type": "array", "items": {"$ref": "#/$defs/range"}},
        "related_resources": {"type": "array", "items": {"$ref": "#/$defs/related_resource"}}
      }
    },
    "file": {
      "type": "object",
      "required": ["path"],
      "properties": {
        "path": {"type": "string", "minLength": 1},
        "conversations": {"type": "array", "items": {"$ref": "#/$defs/conversation"}}
      }
    }
  }
}`

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

var resolvedSchema = sync.OnceValues(func() (*jsonschema.Resolved, error) {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(recordSchema), &schema); err != nil {
		return nil, fmt.Errorf("parsing record schema: %w", err)
	}
	return schema.Resolve(nil)
})

// ValidationError describes one reason a candidate record was rejected.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// JoinValidationErrors folds errs into a single error, or nil when empty.
func JoinValidationErrors(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return errors.Join(joined...)
}

// Validate checks raw JSON against the record schema and returns the decoded
// record. It never has side effects; callers decide whether to skip or fail.
func Validate(data []byte) (*AgentTrace, []ValidationError) {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, []ValidationError{{Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}

	if _, ok := instance.(map[string]any); !ok {
		return nil, []ValidationError{{Message: "record must be a JSON object"}}
	}

	resolved, err := resolvedSchema()
	if err != nil {
		return nil, []ValidationError{{Message: err.Error()}}
	}
	if err := resolved.Validate(instance); err != nil {
		return nil, []ValidationError{{Message: err.Error()}}
	}

	trace := &AgentTrace{}
	if err := json.Unmarshal(data, trace); err != nil {
		return nil, []ValidationError{{Message: fmt.Sprintf("decoding record: %v", err)}}
	}

	if errs := ValidateTrace(trace); len(errs) > 0 {
		return nil, errs
	}

	return trace, nil
}

// ValidateTrace runs the semantic checks on an already decoded record.
func ValidateTrace(t *AgentTrace) []ValidationError {
	if t == nil {
		return []ValidationError{{Message: "record is nil"}}
	}

	var errs []ValidationError

	if !versionPattern.MatchString(t.Version) {
		errs = append(errs, ValidationError{Field: "version", Message: fmt.Sprintf("%q is not a MAJOR.MINOR.PATCH version", t.Version)})
	}
	if _, err := uuid.Parse(t.ID); err != nil {
		errs = append(errs, ValidationError{Field: "id", Message: fmt.Sprintf("%q is not a valid uuid", t.ID)})
	}
	if _, err := time.Parse(time.RFC3339Nano, t.Timestamp); err != nil {
		errs = append(errs, ValidationError{Field: "timestamp", Message: fmt.Sprintf("%q is not an RFC 3339 date-time", t.Timestamp)})
	}

	for i, f := range t.Files {
		field := fmt.Sprintf("files[%d]", i)
		if f.Path == "" {
			errs = append(errs, ValidationError{Field: field + ".path", Message: "path is required"})
		}
		for j, c := range f.Conversations {
			cfield := fmt.Sprintf("%s.conversations[%d]", field, j)
			if err := validateContributor(c.Contributor); err != "" {
				errs = append(errs, ValidationError{Field: cfield + ".contributor.type", Message: err})
			}
			for k, r := range c.Ranges {
				rfield := fmt.Sprintf("%s.ranges[%d]", cfield, k)
				if r.StartLine < 1 {
					errs = append(errs, ValidationError{Field: rfield + ".start_line", Message: fmt.Sprintf("must be >= 1, got %d", r.StartLine)})
				}
				if r.EndLine < r.StartLine {
					errs = append(errs, ValidationError{Field: rfield + ".end_line", Message: fmt.Sprintf("must be >= start_line %d, got %d", r.StartLine, r.EndLine)})
				}
				if err := validateContributor(r.Contributor); err != "" {
					errs = append(errs, ValidationError{Field: rfield + ".contributor.type", Message: err})
				}
			}
		}
	}

	return errs
}

func validateContributor(c *Contributor) string {
	if c == nil || c.Type == "" {
		return ""
	}
	switch c.Type {
	case ContributorHuman, ContributorAI, ContributorMixed, ContributorUnknown:
		return ""
	default:
		return fmt.Sprintf("%q is not one of human, ai, mixed, unknown", c.Type)
	}
}
