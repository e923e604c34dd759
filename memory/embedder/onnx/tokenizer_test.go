package onnx

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testVocab() map[string]int {
	return map[string]int{
		"[PAD]": 0, "[UNK]": 100, "[CLS]": 101, "[SEP]": 102,
		"the": 1996, "weather": 4633, "in": 1999, "?": 1029,
		"play": 2377, "##ing": 2075, "new": 2047, "york": 2259,
	}
}

func TestTokenize(t *testing.T) {
	tok := NewTokenizer(testVocab())

	tests := []struct {
		name string
		in   string
		want []int64
	}{
		{name: "exact words", in: "The weather", want: []int64{1996, 4633}},
		{name: "punctuation split", in: "weather?", want: []int64{4633, 1029}},
		{name: "word pieces", in: "Playing", want: []int64{2377, 2075}},
		{name: "unknown word", in: "zzz", want: []int64{unkToken}},
		{name: "empty", in: "   ", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tok.Tokenize(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodePadsAndTruncates(t *testing.T) {
	tok := NewTokenizer(testVocab())

	ids, mask := tok.Encode("new york", 6)
	wantIDs := []int64{clsToken, 2047, 2259, sepToken, padToken, padToken}
	wantMask := []int64{1, 1, 1, 1, 0, 0}
	if !reflect.DeepEqual(ids, wantIDs) || !reflect.DeepEqual(mask, wantMask) {
		t.Fatalf("Encode() = %v %v, want %v %v", ids, mask, wantIDs, wantMask)
	}

	ids, mask = tok.Encode("the the the the the", 4)
	if ids[0] != clsToken || ids[3] != sepToken {
		t.Fatalf("truncated encoding lost special tokens: %v", ids)
	}
	for _, m := range mask {
		if m != 1 {
			t.Fatalf("mask = %v, want all ones", mask)
		}
	}
}

func TestLoadTokenizer(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "tokenizer.json")
	if err := os.WriteFile(good, []byte(`{"model":{"vocab":{"hello":7592}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	tok, err := LoadTokenizer(good)
	if err != nil {
		t.Fatalf("LoadTokenizer() error = %v", err)
	}
	if got := tok.Tokenize("hello"); !reflect.DeepEqual(got, []int64{7592}) {
		t.Fatalf("Tokenize() = %v", got)
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{"model":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTokenizer(empty); err == nil {
		t.Fatal("expected error for missing vocabulary")
	}
	if _, err := LoadTokenizer(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
