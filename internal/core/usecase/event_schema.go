package usecase

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	createEventSchema = mustCompileSchema("schemas/event_create.json")
	updateEventSchema = mustCompileSchema("schemas/event_update.json")
)

func mustCompileSchema(name string) *santhosh.Schema {
	sch, err := compileSchema(name)
	if err != nil {
		panic(fmt.Sprintf("compile %s: %v", name, err))
	}
	return sch
}

func compileSchema(name string) (*santhosh.Schema, error) {
	f, err := schemaFS.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource(name, f); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}

// validateFields checks the provided form values against sch. Returns
// *domain.ValidationError on failure.
func validateFields(sch *santhosh.Schema, fields domain.EventFields) error {
	if err := sch.Validate(fields.Map()); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &domain.ValidationError{Errors: collectValidationErrors(ve)}
		}
		return domain.NewValidationError(err.Error())
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		field := strings.TrimPrefix(ve.InstanceLocation, "/")
		if field == "" {
			msgs = append(msgs, ve.Message)
		} else {
			msgs = append(msgs, field+": "+ve.Message)
		}
	}
	return msgs
}
