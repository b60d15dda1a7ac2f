package provider

import (
	"encoding/json"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want ContentKind
	}{
		{"", KindText},
		{"chat", KindText},
		{"IMAGE", KindImage},
		{"ptt", KindAudio},
		{"document", KindDocument},
		{"sticker", KindSticker},
		{"location", KindUnknown},
	}
	for _, tt := range tests {
		if got := ParseKind(tt.in); got != tt.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestItemEmpty(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want bool
	}{
		{"blank", Item{Text: "  \n"}, true},
		{"text", Item{Text: "hi"}, false},
		{"empty media", Item{Media: &Media{MimeType: "image/png"}}, true},
		{"media", Item{Media: &Media{Data: []byte{1}, MimeType: "image/png"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Empty(); got != tt.want {
				t.Errorf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMediaKind(t *testing.T) {
	tests := map[string]ContentKind{
		"image/jpeg":      KindImage,
		"image/webp":      KindSticker,
		"video/mp4":       KindVideo,
		"audio/ogg":       KindAudio,
		"application/pdf": KindDocument,
	}
	for mime, want := range tests {
		if got := (Media{MimeType: mime}).Kind(); got != want {
			t.Errorf("Kind(%q) = %q, want %q", mime, got, want)
		}
	}
}

func TestBatchRequestOmitsZeroTiming(t *testing.T) {
	data, err := json.Marshal(BatchRequest{ChatIDs: []string{"c1"}, Items: []Item{{Text: "hi"}}})
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"intervalMs", "bigIntervalMs", "messagesUntilBigInterval", "paramsByChatId"} {
		if _, ok := fields[key]; ok {
			t.Errorf("field %s should be omitted", key)
		}
	}
}

func TestPendingAndSession(t *testing.T) {
	if !(Message{ID: PendingPrefix + "x"}).IsPending() {
		t.Error("local- id should be pending")
	}
	if (Message{ID: "ABC"}).IsPending() {
		t.Error("provider id should not be pending")
	}
	if (Session{OwnerID: " "}).Valid() {
		t.Error("blank owner should be invalid")
	}
}

func TestNewRawEvent(t *testing.T) {
	raw, err := NewRawEvent(EventNewMessage, "c1", Message{ID: "m1", Body: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	var m Message
	if err := json.Unmarshal(raw.Message, &m); err != nil {
		t.Fatal(err)
	}
	if m.ID != "m1" || raw.ChannelID != "c1" {
		t.Errorf("raw = %+v, message = %+v", raw, m)
	}
}
