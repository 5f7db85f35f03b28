package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Wire keys. A record is {"__symbolic":"module","version":N,"metadata":{...}}.
const (
	keySymbolic = "__symbolic"
	keyVersion  = "version"
	keyMetadata = "metadata"
	keyMembers  = "members"
	keyExtends  = "extends"
	keyName     = "name"
	keyModule   = "module"

	symbolicModule    = "module"
	symbolicReference = "reference"
)

// DecodeRecords parses the contents of a metadata file. A file holds a single
// record object, an array of records, or null for zero records.
func DecodeRecords(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty metadata file")
	}

	switch data[0] {
	case 'n':
		if string(data) != "null" {
			return nil, fmt.Errorf("unexpected token %q", data)
		}
		return []Record{}, nil
	case '[':
		var records []Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
		if records == nil {
			records = []Record{}
		}
		return records, nil
	case '{':
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return []Record{r}, nil
	default:
		return nil, fmt.Errorf("metadata must be an object or array, got %q", truncate(data))
	}
}

// EncodeRecords renders records as an indented JSON array.
func EncodeRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.MarshalIndent(records, "", "  ")
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	if fields == nil {
		return errors.New("record: null")
	}

	if raw, ok := fields[keySymbolic]; ok {
		var tag string
		if err := json.Unmarshal(raw, &tag); err != nil || tag != symbolicModule {
			return fmt.Errorf("record: %s must be %q, got %s", keySymbolic, symbolicModule, raw)
		}
	}

	raw, ok := fields[keyVersion]
	if !ok {
		return errors.New("record: missing version")
	}
	var version int
	if err := json.Unmarshal(raw, &version); err != nil || version < 1 {
		return fmt.Errorf("record: invalid version %s", raw)
	}

	symbols := NewSymbolTable()
	if raw, ok := fields[keyMetadata]; ok {
		if err := json.Unmarshal(raw, symbols); err != nil {
			return fmt.Errorf("record: %s: %w", keyMetadata, err)
		}
	}

	*r = Record{Version: version, Symbols: symbols}
	for k, v := range fields {
		switch k {
		case keySymbolic, keyVersion, keyMetadata:
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]json.RawMessage)
			}
			r.Extra[k] = v
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+3)
	for k, v := range r.Extra {
		out[k] = v
	}
	out[keySymbolic] = symbolicModule
	out[keyVersion] = r.Version
	symbols := r.Symbols
	if symbols == nil {
		symbols = NewSymbolTable()
	}
	out[keyMetadata] = symbols
	return json.Marshal(out)
}

// UnmarshalJSON decodes a JSON object keeping the order of its keys.
func (t *SymbolTable) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("symbols must be an object, got %v", tok)
	}

	*t = SymbolTable{symbols: make(map[string]Symbol)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected key %v", tok)
		}
		var sym Symbol
		if err := dec.Decode(&sym); err != nil {
			return fmt.Errorf("symbol %q: %w", name, err)
		}
		t.Set(name, sym)
	}
	_, err = dec.Token()
	return err
}

// MarshalJSON writes symbols in table order.
func (t *SymbolTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	i := 0
	for name, sym := range t.All() {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(sym)
		if err != nil {
			return nil, fmt.Errorf("symbol %q: %w", name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler. Entries that are not tagged
// objects are kept as literal values.
func (s *Symbol) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*s = Symbol{}

	var fields map[string]json.RawMessage
	if len(trimmed) == 0 || trimmed[0] != '{' {
		s.Kind = Value
		s.Literal = append(json.RawMessage(nil), trimmed...)
		return nil
	}
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return err
	}
	raw, ok := fields[keySymbolic]
	if !ok {
		s.Kind = Value
		s.Literal = append(json.RawMessage(nil), trimmed...)
		return nil
	}
	var kind string
	if err := json.Unmarshal(raw, &kind); err != nil {
		return fmt.Errorf("%s: %w", keySymbolic, err)
	}
	s.Kind = SymbolKind(kind)

	for k, v := range fields {
		switch k {
		case keySymbolic:
		case keyMembers:
			members, err := decodeMembers(v)
			if err != nil {
				return err
			}
			s.Members = members
		case keyExtends:
			if ref, ok := decodeReference(v); ok {
				s.Extends = ref
				continue
			}
			s.setExtra(k, v)
		default:
			s.setExtra(k, v)
		}
	}
	return nil
}

func (s *Symbol) setExtra(k string, v json.RawMessage) {
	if s.Extra == nil {
		s.Extra = make(map[string]json.RawMessage)
	}
	s.Extra[k] = v
}

// MarshalJSON implements json.Marshaler.
func (s Symbol) MarshalJSON() ([]byte, error) {
	if s.Literal != nil {
		return s.Literal, nil
	}
	out := make(map[string]any, len(s.Extra)+3)
	for k, v := range s.Extra {
		out[k] = v
	}
	out[keySymbolic] = string(s.Kind)
	if s.Members != nil {
		out[keyMembers] = s.Members
	}
	if s.Extends != nil {
		ref := map[string]string{keySymbolic: symbolicReference, keyName: s.Extends.Name}
		if s.Extends.Module != "" {
			ref[keyModule] = s.Extends.Module
		}
		out[keyExtends] = ref
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Member) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("member: %w", err)
	}
	*m = Member{}
	for k, v := range fields {
		if k == keySymbolic {
			var kind string
			if err := json.Unmarshal(v, &kind); err != nil {
				return fmt.Errorf("member %s: %w", keySymbolic, err)
			}
			m.Kind = MemberKind(kind)
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage)
		}
		m.Extra[k] = v
	}
	if m.Kind == "" {
		return fmt.Errorf("member: missing %s", keySymbolic)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (m Member) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+1)
	for k, v := range m.Extra {
		out[k] = v
	}
	out[keySymbolic] = string(m.Kind)
	return json.Marshal(out)
}

func decodeMembers(raw json.RawMessage) (map[string][]Member, error) {
	var members map[string][]Member
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("%s: %w", keyMembers, err)
	}
	return members, nil
}

// decodeReference accepts only the plain {__symbolic: reference, name[, module]}
// shape. Anything richer stays in Extra untouched.
func decodeReference(raw json.RawMessage) (*Reference, bool) {
	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}
	if fields[keySymbolic] != symbolicReference || fields[keyName] == "" {
		return nil, false
	}
	for k := range fields {
		if k != keySymbolic && k != keyName && k != keyModule {
			return nil, false
		}
	}
	return &Reference{Module: fields[keyModule], Name: fields[keyName]}, true
}

// MemberNames returns the member names of s in sorted order.
func (s Symbol) MemberNames() []string {
	names := make([]string, 0, len(s.Members))
	for name := range s.Members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func truncate(b []byte) string {
	const max = 32
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
