package payload

import "testing"

const sampleWebhook = `{
	"action": "created",
	"repository": {"full_name": "acme/widgets"},
	"issue": {"number": 42, "user": {"login": "alice"}},
	"comment": {"id": 9000000001, "user": {"login": "bob"}, "body": "looks good"},
	"sender": {"login": "bob"}
}`

func TestPathLookups(t *testing.T) {
	p, err := Parse([]byte(sampleWebhook))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	tests := []struct {
		name       string
		path       []string
		wantString string
		wantInt    int64
		isString   bool
		isInt      bool
	}{
		{name: "action", path: []string{"action"}, wantString: "created", isString: true},
		{name: "repository full name", path: []string{"repository", "full_name"}, wantString: "acme/widgets", isString: true},
		{name: "issue number", path: []string{"issue", "number"}, wantInt: 42, isInt: true},
		{name: "comment id beyond int32", path: []string{"comment", "id"}, wantInt: 9000000001, isInt: true},
		{name: "comment author", path: []string{"comment", "user", "login"}, wantString: "bob", isString: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := p.Path(tt.path...)
			if tt.isString {
				got, ok := v.AsString()
				if !ok || got != tt.wantString {
					t.Errorf("AsString() = %q, %v; want %q, true", got, ok, tt.wantString)
				}
			}
			if tt.isInt {
				got, ok := v.AsInt64()
				if !ok || got != tt.wantInt {
					t.Errorf("AsInt64() = %d, %v; want %d, true", got, ok, tt.wantInt)
				}
			}
		})
	}
}

func TestAbsenceAndTypeMismatch(t *testing.T) {
	p, err := Parse([]byte(sampleWebhook))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if v := p.Path("issue", "title"); v.Present() {
		t.Error("expected absent value for missing field")
	}
	if _, ok := p.Path("issue", "number", "nested").AsString(); ok {
		t.Error("expected miss when walking through a non-object")
	}
	if _, ok := p.Field("action").AsInt64(); ok {
		t.Error("expected type mismatch for string field read as int")
	}
	if _, ok := p.Path("issue", "number").AsString(); ok {
		t.Error("expected type mismatch for number field read as string")
	}
	if v := p.Path(); v.Present() {
		t.Error("empty path should miss")
	}
}

func TestZeroPayload(t *testing.T) {
	var p Payload
	if p.Field("action").Present() {
		t.Error("zero payload should miss every lookup")
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := Parse([]byte(`["array","top","level"]`)); err == nil {
		t.Error("expected error for non-object top level")
	}
}
