package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/attendbot/attend/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// cookieSchemaJSON describes the artifact file: an array of cookies with at
// least name, value and domain. Extra fields written by browsers are allowed.
const cookieSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name", "value", "domain"],
    "properties": {
      "name": {"type": "string", "minLength": 1},
      "value": {"type": "string"},
      "domain": {"type": "string"},
      "path": {"type": "string"},
      "expires": {"type": "number"},
      "httpOnly": {"type": "boolean"},
      "secure": {"type": "boolean"},
      "sameSite": {"type": "string"}
    }
  }
}`

var (
	cookieSchema  = mustCompileSchema(cookieSchemaJSON, "cookies.schema.json")
	schemaPrinter = message.NewPrinter(language.English)
)

func mustCompileSchema(raw, name string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// ArtifactError reports a session artifact file that exists but cannot be used.
type ArtifactError struct {
	Path     string
	Problems []string
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("invalid session artifacts in %s: %s", e.Path, strings.Join(e.Problems, "; "))
}

// Store persists session cookies to a single JSON file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store backed by path. The file is created on first Save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Exists reports whether an artifact file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the persisted cookies. A missing file yields (nil, nil).
func (s *Store) Load() ([]models.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session artifacts: %w", err)
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, &ArtifactError{Path: s.path, Problems: []string{err.Error()}}
	}
	if problems := validate(instance); len(problems) > 0 {
		return nil, &ArtifactError{Path: s.path, Problems: problems}
	}

	var cookies []models.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, &ArtifactError{Path: s.path, Problems: []string{err.Error()}}
	}
	return cookies, nil
}

// Save overwrites the artifact file with cookies.
func (s *Store) Save(cookies []models.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cookies == nil {
		cookies = []models.Cookie{}
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session artifacts: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating session artifact directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing session artifacts: %w", err)
	}
	return nil
}

func validate(instance any) []string {
	err := cookieSchema.Validate(instance)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var out []string
	collectSchemaErrors(ve, &out)
	return out
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(schemaPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}
