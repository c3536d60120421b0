// File: internal/config/template.go
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StripTemplate turns a filled-in YAML config into a shareable template.
// Keys and comments are kept, scalar values are blanked and sequences become
// empty flow sequences, so no secrets or personal data survive.
func StripTemplate(in []byte) ([]byte, error) {
	if len(bytes.TrimSpace(in)) == 0 {
		return []byte{}, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(in, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	blankNode(&doc)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	return buf.Bytes(), nil
}

// StripTemplateFile reads inPath and writes its template to outPath.
func StripTemplateFile(inPath, outPath string) error {
	in, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", inPath, err)
	}
	out, err := StripTemplate(in)
	if err != nil {
		return fmt.Errorf("%s: %w", inPath, err)
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	return nil
}

func blankNode(n *yaml.Node) {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			blankNode(c)
		}
	case yaml.MappingNode:
		// Content alternates key, value.
		for i := 1; i < len(n.Content); i += 2 {
			blankValue(n.Content[i])
		}
	case yaml.SequenceNode:
		blankValue(n)
	case yaml.ScalarNode:
		blankValue(n)
	}
}

func blankValue(v *yaml.Node) {
	switch v.Kind {
	case yaml.MappingNode:
		blankNode(v)
	case yaml.SequenceNode:
		v.Content = nil
		v.Style = yaml.FlowStyle
		v.Tag = "!!seq"
		v.Anchor = ""
	case yaml.ScalarNode, yaml.AliasNode:
		v.Kind = yaml.ScalarNode
		v.Alias = nil
		v.Anchor = ""
		v.Tag = "!!null"
		v.Value = ""
		v.Style = 0
	}
}
