package protocol

import (
	"bytes"
	"strings"
	"testing"
)

func TestEndpoint(t *testing.T) {
	tests := []struct {
		command string
		want    string
		wantErr bool
	}{
		{"lights/set", "/lights/set/run", false},
		{"/lights/set/", "/lights/set/run", false},
		{"start/ctl", "/start/ctl/run", false},
		{"", "", true},
		{"/", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			got, err := Endpoint(tt.command)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Endpoint(%q) error = %v, wantErr %v", tt.command, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Endpoint(%q) = %q, want %q", tt.command, got, tt.want)
			}
		})
	}
}

func TestDecodeFragments(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		checkFn func(t *testing.T, f Fragments)
	}{
		{
			name:  "single fragment",
			input: `{"panel-1": "<div>ok</div>"}`,
			checkFn: func(t *testing.T, f Fragments) {
				if len(f) != 1 || f[0].ID != "panel-1" || f[0].Markup != "<div>ok</div>" {
					t.Errorf("unexpected fragments: %+v", f)
				}
			},
		},
		{
			name:  "keeps server order",
			input: `{"z": "1", "a": "2", "_error": "3"}`,
			checkFn: func(t *testing.T, f Fragments) {
				got := strings.Join(f.IDs(), ",")
				if got != "z,a,_error" {
					t.Errorf("want order z,a,_error, got %s", got)
				}
			},
		},
		{
			name:  "duplicate key keeps first position and last value",
			input: `{"a": "1", "b": "2", "a": "3"}`,
			checkFn: func(t *testing.T, f Fragments) {
				if got := strings.Join(f.IDs(), ","); got != "a,b" {
					t.Errorf("want a,b got %s", got)
				}
				if m, _ := f.Get("a"); m != "3" {
					t.Errorf("want a=3 got %s", m)
				}
			},
		},
		{
			name:  "empty object",
			input: `{}`,
			checkFn: func(t *testing.T, f Fragments) {
				if len(f) != 0 {
					t.Errorf("want no fragments, got %d", len(f))
				}
			},
		},
		{name: "empty body", input: ``, wantErr: true},
		{name: "array", input: `["a"]`, wantErr: true},
		{name: "non-string markup", input: `{"a": 1}`, wantErr: true},
		{name: "truncated", input: `{"a": "x"`, wantErr: true},
		{name: "trailing data", input: `{"a": "x"} {}`, wantErr: true},
		{name: "html error page", input: `<html>500</html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFragments(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeFragments() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, f)
			}
		})
	}
}

func TestEncodeFragmentsPreservesOrder(t *testing.T) {
	in := Fragments{{ID: "b", Markup: `<p class="x">"q"</p>`}, {ID: "a", Markup: ""}}

	var buf bytes.Buffer
	if err := EncodeFragments(&buf, in); err != nil {
		t.Fatalf("EncodeFragments: %v", err)
	}
	if !strings.HasPrefix(buf.String(), `{"b":`) {
		t.Errorf("expected b first, got %s", buf.String())
	}

	out, err := DecodeFragments(&buf)
	if err != nil {
		t.Fatalf("DecodeFragments: %v", err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Errorf("unexpected decode: %+v", out)
	}
}

func TestFragmentsGetMissing(t *testing.T) {
	if _, ok := (Fragments{}).Get("x"); ok {
		t.Error("expected missing key")
	}
}
