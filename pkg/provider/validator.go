package provider

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ArgumentValidator validates tool call arguments against the JSON schema
// each tool declared at discovery time.
type ArgumentValidator struct{}

// NewArgumentValidator creates a new ArgumentValidator
func NewArgumentValidator() *ArgumentValidator {
	return &ArgumentValidator{}
}

// Validate checks args against the tool's declared input schema. A tool with
// no declared schema accepts anything.
func (v *ArgumentValidator) Validate(tool ToolDescriptor, args map[string]interface{}) error {
	if len(tool.InputSchema) == 0 {
		return nil
	}

	schemaLoader := gojsonschema.NewBytesLoader(tool.InputSchema)
	if args == nil {
		args = map[string]interface{}{}
	}
	docLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		// Malformed schema from the provider: accept the call, the provider
		// gets to reject it itself
		return nil
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("invalid arguments for tool %s: %s", tool.Name, strings.Join(problems, "; "))
}
