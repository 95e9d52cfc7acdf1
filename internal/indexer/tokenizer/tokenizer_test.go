package tokenizer

import (
	"reflect"
	"testing"
)

func TestTokenizeNormalizes(t *testing.T) {
	got := Tokenize("The WHALE, the whale!", true)
	want := []string{"whale", "whale"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenizeStripsAccents(t *testing.T) {
	got := Tokenize("Canción única: café", true)
	want := []string{"cancion", "unica", "cafe"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenizeStopwords(t *testing.T) {
	text := "the cat and the dog"
	with := Tokenize(text, false)
	without := Tokenize(text, true)
	if !reflect.DeepEqual(with, []string{"the", "cat", "and", "the", "dog"}) {
		t.Errorf("stopwords kept: got %v", with)
	}
	if !reflect.DeepEqual(without, []string{"cat", "dog"}) {
		t.Errorf("stopwords removed: got %v", without)
	}
}

func TestTokenizeSplitsOnNonAlphanumeric(t *testing.T) {
	got := Tokenize("moby-dick; or, whale42", true)
	want := []string{"moby", "dick", "whale42"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenizeEmpty(t *testing.T) {
	if got := Tokenize("", true); len(got) != 0 {
		t.Errorf("Tokenize(\"\") = %v, want empty", got)
	}
	if got := Tokenize("... --- !!!", true); len(got) != 0 {
		t.Errorf("Tokenize(punctuation) = %v, want empty", got)
	}
}
