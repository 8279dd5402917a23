package credsource

import "testing"

func TestStatic_Lookup(t *testing.T) {
	s := Static{"ngrok": "tok-123"}

	tok, ok := s.Lookup("ngrok")
	if !ok || tok != "tok-123" {
		t.Fatalf("expected tok-123/true, got %q/%v", tok, ok)
	}

	_, ok = s.Lookup("cloudflare-quick")
	if ok {
		t.Fatal("expected ok=false for unknown provider")
	}
}
