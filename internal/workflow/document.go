package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a workflow document encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown workflow document format")

// FormatFor picks a document format from a file extension
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Decode reads a workflow document. A bare list of steps is accepted as
// well as a full workflow object.
func Decode(r io.Reader, f Format) (*Workflow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var wf Workflow
	var steps []Step
	switch f {
	case FormatJSON:
		if isList(data) {
			err = json.Unmarshal(data, &steps)
		} else {
			err = json.Unmarshal(data, &wf)
		}
	case FormatYAML:
		if err = yaml.Unmarshal(data, &wf); err != nil {
			steps = nil
			if lerr := yaml.Unmarshal(data, &steps); lerr == nil {
				err = nil
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode workflow: %w", err)
	}
	if steps != nil {
		wf.Steps = steps
	}

	wf.Steps = Normalize(wf.Steps)
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Encode writes a workflow document
func Encode(w io.Writer, wf *Workflow, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(wf)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(wf); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, f)
	}
}

// LoadFile reads a workflow document, choosing the format by extension
func LoadFile(path string) (*Workflow, error) {
	f, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Decode(file, f)
}

// SaveFile writes a workflow document, choosing the format by extension
func SaveFile(path string, wf *Workflow) error {
	f, err := FormatFor(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(file, wf, f); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func isList(data []byte) bool {
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "[")
}
