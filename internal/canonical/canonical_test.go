package canonical

import (
	"strings"
	"sync"
	"testing"
)

func TestFingerprintDeterminism(t *testing.T) {
	payload := map[string]interface{}{
		"templateId": "tpl_1",
		"fields":     map[string]interface{}{"name": "A", "dose": 2.5},
		"tags":       []interface{}{"b", "a"},
	}
	first := Fingerprint(payload)
	for i := 0; i < 10; i++ {
		if got := Fingerprint(payload); got != first {
			t.Fatalf("fingerprint changed between calls: %s != %s", got, first)
		}
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}
	if first != strings.ToLower(first) {
		t.Errorf("fingerprint must be lowercase hex: %s", first)
	}
}

func TestFingerprintKeyOrderIndependence(t *testing.T) {
	a := map[string]interface{}{"a": 1, "b": 2}
	b := map[string]interface{}{"b": 2, "a": 1}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("key insertion order must not affect the fingerprint")
	}
}

func TestFingerprintNullNormalization(t *testing.T) {
	withNil := map[string]interface{}{"a": 1, "b": nil}
	without := map[string]interface{}{"a": 1}
	if Fingerprint(withNil) != Fingerprint(without) {
		t.Error("null values and absent keys must be equivalent")
	}

	nested := map[string]interface{}{
		"a": 1,
		"c": map[string]interface{}{"x": nil},
	}
	nestedEmpty := map[string]interface{}{
		"a": 1,
		"c": map[string]interface{}{},
	}
	if Fingerprint(nested) != Fingerprint(nestedEmpty) {
		t.Error("null normalization must apply recursively")
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	a := map[string]interface{}{"templateId": "tpl_1", "name": "Alice"}
	b := map[string]interface{}{"templateId": "tpl_1", "name": "Alicf"}
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("single-character difference must change the fingerprint")
	}
}

func TestFingerprintSequenceOrderSignificant(t *testing.T) {
	a := map[string]interface{}{"items": []interface{}{"x", "y"}}
	b := map[string]interface{}{"items": []interface{}{"y", "x"}}
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("sequence order is semantically meaningful and must affect the digest")
	}
}

func TestFingerprintEmptyPayload(t *testing.T) {
	if Fingerprint(nil) == "" {
		t.Fatal("empty payload must hash to a fixed digest, not fail")
	}
	if Fingerprint(nil) != Fingerprint(nil) {
		t.Error("empty payload digest must be stable")
	}
	if Fingerprint(map[string]interface{}{}) == Fingerprint(nil) {
		t.Error("empty object and null are distinct values")
	}
}

func TestFingerprintNumericForms(t *testing.T) {
	// ints and their float64 JSON decoding must agree
	a := map[string]interface{}{"n": 3}
	b := map[string]interface{}{"n": float64(3)}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("int 3 and float64 3 must produce the same digest")
	}
}

func TestFingerprintStructsMatchJSON(t *testing.T) {
	type patient struct {
		Name string  `json:"name"`
		MRN  *string `json:"mrn,omitempty"`
	}
	fromStruct := Fingerprint(patient{Name: "A"})
	fromMap := Fingerprint(map[string]interface{}{"name": "A"})
	if fromStruct != fromMap {
		t.Errorf("struct and equivalent map must agree: %s != %s", fromStruct, fromMap)
	}
}

func TestFingerprintJSON(t *testing.T) {
	fp, err := FingerprintJSON([]byte(`{"b":2,"a":1,"c":null}`))
	if err != nil {
		t.Fatalf("FingerprintJSON: %v", err)
	}
	want := Fingerprint(map[string]interface{}{"a": 1, "b": 2})
	if fp != want {
		t.Errorf("raw JSON and decoded map must agree: %s != %s", fp, want)
	}

	if _, err := FingerprintJSON([]byte(`{not json`)); err == nil {
		t.Error("malformed JSON must return an error")
	}
}

func TestFingerprintConcurrent(t *testing.T) {
	payload := map[string]interface{}{"a": []interface{}{1.0, 2.0, 3.0}}
	want := Fingerprint(payload)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := Fingerprint(payload); got != want {
				t.Errorf("concurrent fingerprint mismatch: %s", got)
			}
		}()
	}
	wg.Wait()
}
