package tagscan

import (
	"reflect"
	"testing"
)

func TestScanClassifiesDialects(t *testing.T) {
	tests := []struct {
		body      string
		kind      Kind
		sub       Subtype
		recipient int
	}{
		{"sig_es_:signer1:signature", KindProvider, SubSignature, 1},
		{"sig_es_:signer2", KindProvider, SubSignature, 2},
		{"Sig_es_:signer1:signature", KindProvider, SubSignature, 1},
		{"*ES_:signer1:signature", KindProvider, SubSignature, 1},
		{"esig_block:signer3", KindProvider, SubSignature, 3},
		{"date_es_:signer1:date", KindProvider, SubDate, 1},
		{"signer2:date", KindProvider, SubDate, 2},
		{"signer1:signature", KindProvider, SubSignature, 1},
		{"signer4:initial", KindProvider, SubInitial, 4},
		{"text_es_:signer1:company", KindProvider, SubText, 1},
		{"check_es_:signer2:agree", KindProvider, SubCheckbox, 2},
		{"my_signer1:signature_here", KindProvider, SubSignature, 1},
		{"signer12", KindProvider, SubSignature, 12},
		{"clientName", KindOrdinary, SubSignature, 0},
		{"effective_date", KindOrdinary, SubSignature, 0},
		{"weird:token", KindNoise, SubSignature, 0},
		{"*bold*", KindNoise, SubSignature, 0},
		{"", KindNoise, SubSignature, 0},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			kind, sub, n, _ := classifyBody(tt.body)
			if kind != tt.kind {
				t.Fatalf("kind = %v, want %v", kind, tt.kind)
			}
			if kind != KindProvider {
				return
			}
			if sub != tt.sub {
				t.Errorf("subtype = %v, want %v", sub, tt.sub)
			}
			if n != tt.recipient {
				t.Errorf("recipient = %d, want %d", n, tt.recipient)
			}
		})
	}
}

func TestScanSpansAndStyles(t *testing.T) {
	text := "Dear {clientName}, sign at {sig_es_:signer1:signature} or {{signer2:date}}."
	tags := Scan(text)
	if len(tags) != 3 {
		t.Fatalf("got %d tags, want 3", len(tags))
	}

	if tags[0].Kind != KindOrdinary || tags[0].Raw != "{clientName}" {
		t.Errorf("tag 0 = %+v", tags[0])
	}
	if tags[1].Kind != KindProvider || tags[1].Style != BraceSingle {
		t.Errorf("tag 1 = %+v", tags[1])
	}
	if tags[2].Kind != KindProvider || tags[2].Style != BraceDouble || tags[2].Subtype != SubDate {
		t.Errorf("tag 2 = %+v", tags[2])
	}

	// Spans must slice the original text back out exactly.
	for _, tag := range tags {
		if text[tag.Start:tag.End] != tag.Raw {
			t.Errorf("span [%d,%d) = %q, want %q", tag.Start, tag.End, text[tag.Start:tag.End], tag.Raw)
		}
	}
}

func TestScanSpecificBeatsGenericFallback(t *testing.T) {
	// signer1:date also ends in digits-after-signer if truncated; the
	// explicit date pattern must win over the signature default.
	tags := Scan("{signer1:date}")
	if len(tags) != 1 || tags[0].Subtype != SubDate {
		t.Fatalf("got %+v, want one DATE tag", tags)
	}
}

func TestScanIsIdempotent(t *testing.T) {
	text := "a {x} b {sig_es_:signer1:signature} c {bad:tok} d"
	first := Scan(text)
	second := Scan(text)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("repeated Scan of the same text differs")
	}
}

func TestScanSkipsMalformedBraces(t *testing.T) {
	tags := Scan("open {never closed and {inner} after")
	if len(tags) != 1 || tags[0].Body != "inner" {
		t.Fatalf("got %+v, want only {inner}", tags)
	}

	if got := Scan("no braces at all"); got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
}

func TestCountProviderTags(t *testing.T) {
	text := "{a} {signer1:signature} {{date_es_:signer2:date}} {b:c}"
	if n := CountProviderTags(text); n != 2 {
		t.Fatalf("CountProviderTags = %d, want 2", n)
	}
}

func TestNameLooksReserved(t *testing.T) {
	reserved := []string{"signer1", "sig_es_thing", "text_es_field", "clientSignature", "date_es_x", "SIGNER2"}
	for _, name := range reserved {
		if !NameLooksReserved(name) {
			t.Errorf("NameLooksReserved(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"clientName", "amount", "design"} {
		if NameLooksReserved(name) {
			t.Errorf("NameLooksReserved(%q) = true, want false", name)
		}
	}
}
