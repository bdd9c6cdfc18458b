package semantic

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestExpand_BuiltinSynonyms(t *testing.T) {
	e := NewExpander(nil)
	result := e.Expand("billing")

	for _, want := range []string{"billing", "invoice", "payment"} {
		if _, ok := result[want]; !ok {
			t.Errorf("expand(billing) missing %q", want)
		}
	}
}

func TestExpand_OriginPinnedAtOne(t *testing.T) {
	e := NewExpander(nil)
	result := e.Expand("login")

	if result["login"] != 1.0 {
		t.Errorf("confidence of origin = %f, want 1.0", result["login"])
	}
	for term, conf := range result {
		if term == "login" {
			continue
		}
		if conf <= 0 || conf >= 1.0 {
			t.Errorf("confidence of %q = %f, want in (0,1)", term, conf)
		}
	}
}

func TestExpand_UnknownTerm(t *testing.T) {
	e := NewExpander(nil)
	result := e.Expand("xyzzy")

	if len(result) != 1 {
		t.Fatalf("expand of unknown term returned %d entries, want 1", len(result))
	}
	if result["xyzzy"] != 1.0 {
		t.Errorf("confidence = %f, want 1.0", result["xyzzy"])
	}
}

func TestExpand_Symmetry(t *testing.T) {
	e := NewExpander(nil)

	pairs := [][2]string{
		{"auth", "login"},
		{"billing", "charge"},
		{"db", "storage"},
	}
	for _, pair := range pairs {
		a, b := pair[0], pair[1]
		if _, ok := e.Expand(a)[b]; !ok {
			t.Errorf("%q not in expand(%q)", b, a)
		}
		if _, ok := e.Expand(b)[a]; !ok {
			t.Errorf("%q not in expand(%q)", a, b)
		}
	}
}

func TestExpand_DecayByDepth(t *testing.T) {
	// Chain a-b-c via two overlapping clusters: c is two hops from a.
	e := NewExpander([][]string{
		{"alpha", "bravo"},
		{"bravo", "charlie"},
	})

	result := e.Expand("alpha")
	if got := result["bravo"]; got != DefaultDecay {
		t.Errorf("one-hop confidence = %f, want %f", got, DefaultDecay)
	}
	// Confidence is accumulated by repeated multiplication, so compare the
	// two-hop value within a tolerance rather than bit-for-bit.
	if got, want := result["charlie"], DefaultDecay*DefaultDecay; math.Abs(got-want) > 1e-9 {
		t.Errorf("two-hop confidence = %f, want %f", got, want)
	}
}

func TestExpand_ShortestPathWins(t *testing.T) {
	// "direct" is adjacent to the origin and also reachable through a
	// longer path; the one-hop confidence must win.
	e := NewExpander([][]string{
		{"origin", "direct", "detour"},
		{"detour", "direct"},
	})

	result := e.Expand("origin")
	if got := result["direct"]; got != DefaultDecay {
		t.Errorf("confidence = %f, want shortest-path %f", got, DefaultDecay)
	}
}

func TestExpand_DepthBound(t *testing.T) {
	e := NewExpander([][]string{
		{"t1", "t2"},
		{"t2", "t3"},
		{"t3", "t4"},
	}, WithMaxDepth(2))

	result := e.Expand("t1")
	if _, ok := result["t4"]; ok {
		t.Error("term three hops away leaked past the depth bound")
	}
}

func TestExpand_CaseNormalization(t *testing.T) {
	e := NewExpander(nil)
	result := e.Expand("  BILLING ")

	if result["billing"] != 1.0 {
		t.Error("input was not normalized before lookup")
	}
}

func TestRanked_StableOrder(t *testing.T) {
	e := NewExpander(nil)
	ranked := e.Expand("auth").Ranked()

	if len(ranked) < 2 {
		t.Fatal("expected a multi-term expansion")
	}
	if ranked[0].Term != "auth" || ranked[0].Confidence != 1.0 {
		t.Errorf("first entry = %+v, want the origin at 1.0", ranked[0])
	}
	for i := 1; i < len(ranked); i++ {
		prev, cur := ranked[i-1], ranked[i]
		if cur.Confidence > prev.Confidence {
			t.Fatal("ranked output is not sorted by confidence")
		}
		if cur.Confidence == prev.Confidence && cur.Term < prev.Term {
			t.Fatal("equal confidences are not tie-broken by term")
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synonyms.yaml")
	content := "clusters:\n  payments: [billing, stripe, checkout]\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	overrides, err := LoadOverrides(path)
	if err != nil {
		t.Fatalf("LoadOverrides: %v", err)
	}

	e := NewExpander(overrides)
	result := e.Expand("stripe")
	if _, ok := result["billing"]; !ok {
		t.Error("override cluster not merged: stripe should reach billing")
	}
	// Overrides bridge into the builtin clusters through shared terms.
	if _, ok := result["invoice"]; !ok {
		t.Error("override cluster not bridged to builtin billing cluster")
	}
}

func TestLoadOverrides_Missing(t *testing.T) {
	overrides, err := LoadOverrides(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if overrides != nil {
		t.Errorf("overrides = %v, want nil", overrides)
	}
}

func TestLoadOverrides_SingletonCluster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synonyms.yaml")
	if err := os.WriteFile(path, []byte("clusters:\n  lonely: [one]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadOverrides(path); err == nil {
		t.Error("expected error for a single-term cluster")
	}
}
