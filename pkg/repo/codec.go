package repo

import (
	"bytes"
	"path"
	"strings"

	"github.com/foomo/snippetserver/snippet"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Format of exported and imported snippet collections
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ParseFormat accepts "json", "yaml" and "yml", the empty string defaults to json
func ParseFormat(v string) (Format, error) {
	switch strings.ToLower(v) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", errors.Errorf("unknown format %q (supported: json, yaml)", v)
	}
}

// FormatForKey picks the format from a file extension
func FormatForKey(key string) Format {
	switch strings.ToLower(path.Ext(key)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func encodeSnippets(format Format, snippets []snippet.Snippet) ([]byte, error) {
	if snippets == nil {
		snippets = []snippet.Snippet{}
	}
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(snippets); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatJSON, "":
		return json.MarshalIndent(snippets, "", "  ")
	default:
		return nil, errors.Errorf("unknown format %q", format)
	}
}

// decodeSnippets reads a sequence of (partial) snippet records. Both formats
// ignore fields a snippet does not have.
func decodeSnippets(format Format, data []byte) ([]snippet.Snippet, error) {
	var snippets []snippet.Snippet
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &snippets); err != nil {
			return nil, err
		}
	case FormatJSON, "":
		if err := json.Unmarshal(data, &snippets); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unknown format %q", format)
	}
	if snippets == nil {
		return nil, errors.New("no list of snippets")
	}
	return snippets, nil
}
