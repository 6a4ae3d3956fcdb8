package titlefilter

import "testing"

func TestFilterModeNonePassthrough(t *testing.T) {
	f := New(ModeNone)
	in := "A\x1b]2;hi\x07B"
	if got := string(f.Process([]byte(in))); got != in {
		t.Fatalf("got %q, want unchanged %q", got, in)
	}
}

func TestFilterSwallowsTitleWholeChunk(t *testing.T) {
	f := New(ModeFilter)
	got := f.Process([]byte("A\x1b]2;hi\x07B"))
	if string(got) != "AB" {
		t.Fatalf("got %q, want %q", got, "AB")
	}
	if f.LastTitle != "hi" {
		t.Fatalf("LastTitle = %q, want %q", f.LastTitle, "hi")
	}
}

// TestFilterChunkBoundaryInvariant pins the requirement that splitting a
// stream into arbitrarily small chunks must not change the filtered
// output: feeding "A\x1b]2;hi\x07B" one byte at a time must still yield
// exactly "AB", with no escape bytes leaking through at chunk boundaries.
func TestFilterChunkBoundaryInvariant(t *testing.T) {
	input := "A\x1b]2;hi\x07B"
	f := New(ModeFilter)
	var out []byte
	for i := 0; i < len(input); i++ {
		out = append(out, f.Process([]byte{input[i]})...)
	}
	if string(out) != "AB" {
		t.Fatalf("got %q, want %q", out, "AB")
	}
}

// TestFilterSplitInvariant checks the general property that the filtered
// output of a stream does not depend on how it is chunked.
func TestFilterSplitInvariant(t *testing.T) {
	input := "before\x1b]0;window title\x07middle\x1b]1;icon\x07after"

	whole := New(ModeFilter).Process([]byte(input))

	for _, chunkSize := range []int{1, 2, 3, 7} {
		f := New(ModeFilter)
		var out []byte
		for i := 0; i < len(input); i += chunkSize {
			end := i + chunkSize
			if end > len(input) {
				end = len(input)
			}
			out = append(out, f.Process([]byte(input[i:end]))...)
		}
		if string(out) != string(whole) {
			t.Fatalf("chunkSize=%d: got %q, want %q", chunkSize, out, whole)
		}
	}
}

func TestFilterStaticModeSwallowsLikeFilter(t *testing.T) {
	f := New(ModeStatic)
	got := f.Process([]byte("x\x1b]2;ignored\x07y"))
	if string(got) != "xy" {
		t.Fatalf("got %q, want %q", got, "xy")
	}
}

func TestFilterDynamicAliasesStatic(t *testing.T) {
	f := New(ModeDynamic)
	if f.mode != ModeStatic {
		t.Fatalf("dynamic did not normalize to static: %v", f.mode)
	}
}

func TestFilterNonTitleOSCPassesThrough(t *testing.T) {
	f := New(ModeFilter)
	in := "x\x1b]4;1;rgb:ff/00/00\x07y"
	got := string(f.Process([]byte(in)))
	if got != in {
		t.Fatalf("non-title OSC should pass through unmodified: got %q, want %q", got, in)
	}
}

func TestFilterSTTerminator(t *testing.T) {
	f := New(ModeFilter)
	got := f.Process([]byte("x\x1b]2;title\x1b\\y"))
	if string(got) != "xy" {
		t.Fatalf("got %q, want %q", got, "xy")
	}
	if f.LastTitle != "title" {
		t.Fatalf("LastTitle = %q", f.LastTitle)
	}
}

func TestFilterNonOSCEscapePassesThrough(t *testing.T) {
	f := New(ModeFilter)
	in := "x\x1b[31my"
	got := string(f.Process([]byte(in)))
	if got != in {
		t.Fatalf("CSI sequence should pass through unmodified: got %q, want %q", got, in)
	}
}

func TestEmitTitle(t *testing.T) {
	got := string(EmitTitle("my session"))
	want := "\x1b]2;my session\x07"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
