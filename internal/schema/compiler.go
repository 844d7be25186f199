package schema

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const baseURL = "mem://ecoquote/"

// Names of the embedded payload schemas
const (
	QuotationCreate = "quotation_create"
	PermitRequest   = "permit_request"
	PermitType      = "permit_type"
	StaffCreate     = "staff_create"
)

var ErrInvalid = errors.New("payload does not match schema")

// ValidationError lists every schema violation of a payload
type ValidationError struct {
	Schema   string
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Schema, strings.Join(e.Messages, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

type Compiler struct {
	cache *expirable.LRU[string, *js.Schema]
}

// NewCompilerWithCache creates a new compiler with cache
func NewCompilerWithCache(maxSize int) *Compiler {
	return &Compiler{
		cache: expirable.NewLRU[string, *js.Schema](maxSize, nil, time.Hour),
	}
}

// Prepare compiles and caches a named schema
func (c *Compiler) Prepare(ctx context.Context, name string) (*js.Schema, error) {
	if compiled, ok := c.cache.Get(name); ok {
		return compiled, nil
	}

	compiler := js.NewCompiler()
	compiler.Draft = js.Draft2020
	compiler.AssertFormat = true
	compiler.LoadURL = loadEmbedded

	compiled, err := compiler.Compile(baseURL + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	c.cache.Add(name, compiled)
	return compiled, nil
}

// Validate validates a value against a named schema. The value is passed
// through JSON so structs are checked the way clients send them.
func (c *Compiler) Validate(ctx context.Context, name string, value interface{}) error {
	compiled, err := c.Prepare(ctx, name)
	if err != nil {
		return err
	}

	valueBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	var valueRaw interface{}
	if err := json.Unmarshal(valueBytes, &valueRaw); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	if err := compiled.Validate(valueRaw); err != nil {
		var ve *js.ValidationError
		if errors.As(err, &ve) {
			return &ValidationError{Schema: name, Messages: flatten(ve)}
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func flatten(ve *js.ValidationError) []string {
	var messages []string
	for _, unit := range ve.BasicOutput().Errors {
		if unit.Error == "" || strings.HasPrefix(unit.Error, "doesn't validate with") {
			continue
		}
		location := unit.InstanceLocation
		if location == "" {
			location = "/"
		}
		messages = append(messages, location+": "+unit.Error)
	}
	if len(messages) == 0 {
		messages = append(messages, ve.Message)
	}
	return messages
}

func loadEmbedded(url string) (io.ReadCloser, error) {
	if !strings.HasPrefix(url, baseURL) {
		return nil, fmt.Errorf("schema %s is not embedded", url)
	}
	data, err := schemaFS.ReadFile("schemas/" + strings.TrimPrefix(url, baseURL))
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
