// Package manifest reads and rewrites JSON manifest files (package.json,
// manifest.json) without disturbing their key order or indentation.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Document is a top-level JSON object that remembers the order of its keys
// and the indentation of the file it came from.
type Document struct {
	Indent string

	keys   []string
	values map[string]json.RawMessage
}

// New returns an empty document using DefaultIndent.
func New() *Document {
	return &Document{Indent: DefaultIndent, values: map[string]json.RawMessage{}}
}

// Parse decodes raw into a Document. Anything that is not a single JSON
// object yields an empty document; Parse never fails.
func Parse(raw []byte) *Document {
	doc := New()
	doc.Indent = indentOrDefault(raw)
	if err := doc.decode(raw); err != nil {
		doc.keys = nil
		doc.values = map[string]json.RawMessage{}
	}
	return doc
}

func (d *Document) decode(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected an object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		d.put(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after the top-level object")
	}
	return nil
}

// Load reads the file at path. A missing or unreadable file, or one that does
// not hold a JSON object, gives an empty document.
func Load(path string) *Document {
	raw, err := os.ReadFile(path)
	if err != nil {
		return New()
	}
	return Parse(raw)
}

// Keys returns the keys in file order.
func (d *Document) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// GetString returns the value of key when it is a JSON string, or "".
func (d *Document) GetString(key string) string {
	raw, ok := d.values[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Set stores value under key. Existing keys keep their position; new keys are appended.
func (d *Document) Set(key string, value any) error {
	raw, err := encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %q: %w", key, err)
	}
	d.put(key, raw)
	return nil
}

func (d *Document) put(key string, raw json.RawMessage) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = raw
}

// Delete removes key and reports whether it was present.
func (d *Document) Delete(key string) bool {
	if _, ok := d.values[key]; !ok {
		return false
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

// Marshal serializes the document with its indentation and a trailing newline.
func (d *Document) Marshal() ([]byte, error) {
	var flat bytes.Buffer
	flat.WriteByte('{')
	for i, key := range d.keys {
		if i > 0 {
			flat.WriteByte(',')
		}
		k, err := encode(key)
		if err != nil {
			return nil, err
		}
		flat.Write(k)
		flat.WriteByte(':')
		if err := json.Compact(&flat, d.values[key]); err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", key, err)
		}
	}
	flat.WriteByte('}')

	indent := d.Indent
	if indent == "" {
		indent = DefaultIndent
	}
	var out bytes.Buffer
	if err := json.Indent(&out, flat.Bytes(), "", indent); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// WriteFile replaces the file at path with the serialized document. The data
// goes to a temporary file first and is renamed into place.
func (d *Document) WriteFile(path string) error {
	data, err := d.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", path, err)
	}

	perm := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("failed to write temporary file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

// SetVersion rewrites the "version" field of the manifest at path.
func SetVersion(path, version string) error {
	doc := Load(path)
	if err := doc.Set("version", version); err != nil {
		return err
	}
	return doc.WriteFile(path)
}

// RemoveProperty deletes key from the manifest at path. The file is rewritten
// even when the key is already absent, so repeated calls give identical output.
func RemoveProperty(path, key string) error {
	doc := Load(path)
	doc.Delete(key)
	return doc.WriteFile(path)
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
