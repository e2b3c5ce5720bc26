package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DecodeFragments reads a fragment map ({"id": "markup", ...}) from r,
// keeping key order. Duplicate keys keep their first position and the last
// markup, matching a JSON object parsed by a browser.
func DecodeFragments(r io.Reader) (Fragments, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode fragments: empty body")
		}
		return nil, fmt.Errorf("failed to decode fragments: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("failed to decode fragments: expected object, got %v", tok)
	}

	var out Fragments
	index := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to decode fragments: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("failed to decode fragments: unexpected key %v", keyTok)
		}

		var markup string
		if err := dec.Decode(&markup); err != nil {
			return nil, fmt.Errorf("fragment %q: markup must be a string: %w", key, err)
		}

		if i, seen := index[key]; seen {
			out[i].Markup = markup
			continue
		}
		index[key] = len(out)
		out = append(out, Fragment{ID: key, Markup: markup})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to decode fragments: %w", err)
	}
	if tok, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, fmt.Errorf("failed to decode fragments: %w", err)
		}
		return nil, fmt.Errorf("failed to decode fragments: trailing data %v", tok)
	}
	return out, nil
}

// EncodeFragments writes fragments as a JSON object in order.
func EncodeFragments(w io.Writer, f Fragments) error {
	if _, err := io.WriteString(w, "{"); err != nil {
		return fmt.Errorf("failed to encode fragments: %w", err)
	}
	for i, fr := range f {
		key, err := json.Marshal(fr.ID)
		if err != nil {
			return fmt.Errorf("failed to encode fragment id: %w", err)
		}
		val, err := json.Marshal(fr.Markup)
		if err != nil {
			return fmt.Errorf("failed to encode fragment %q: %w", fr.ID, err)
		}
		sep := ","
		if i == 0 {
			sep = ""
		}
		if _, err := fmt.Fprintf(w, "%s%s:%s", sep, key, val); err != nil {
			return fmt.Errorf("failed to encode fragments: %w", err)
		}
	}
	if _, err := io.WriteString(w, "}\n"); err != nil {
		return fmt.Errorf("failed to encode fragments: %w", err)
	}
	return nil
}
