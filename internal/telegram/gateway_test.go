package telegram

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTagKeyboardLayout(t *testing.T) {
	kb, ok := tagKeyboard([]string{"#a", "#b", "#c", "#d"})
	if !ok {
		t.Fatal("tagKeyboard returned ok == false for tagged post")
	}

	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("got %d rows, want 2", len(kb.InlineKeyboard))
	}
	if len(kb.InlineKeyboard[0]) != 3 || len(kb.InlineKeyboard[1]) != 1 {
		t.Errorf("row sizes = %d/%d, want 3/1", len(kb.InlineKeyboard[0]), len(kb.InlineKeyboard[1]))
	}

	var data []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			data = append(data, *btn.CallbackData)
		}
	}
	want := []string{"tag:#a", "tag:#b", "tag:#c", "tag:#d"}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Errorf("callback data mismatch (-want +got):\n%s", diff)
	}
}

func TestTagKeyboardEmpty(t *testing.T) {
	if _, ok := tagKeyboard(nil); ok {
		t.Error("tagKeyboard returned a keyboard for an untagged post")
	}
}
