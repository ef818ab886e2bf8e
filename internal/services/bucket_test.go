package services

import (
	"strings"
	"testing"
)

func TestObjectKey(t *testing.T) {
	bs := &bucketService{bucketName: "bespoken-audio"}

	key := bs.ObjectKey("user-1", "happy_hour", ".WAV")
	if !strings.HasPrefix(key, "uploads/user-1/happy_hour/") {
		t.Errorf("key prefix: got %q", key)
	}
	if !strings.HasSuffix(key, ".wav") {
		t.Errorf("key extension should be lowercased without a dot: %q", key)
	}
	parts := strings.Split(key, "/")
	if len(parts) != 4 {
		t.Fatalf("key segments: got %q", key)
	}
	name := strings.TrimSuffix(parts[3], ".wav")
	if len(name) != 32 || strings.Contains(name, "-") {
		t.Errorf("random suffix should be a 32-char hex string, got %q", name)
	}

	other := bs.ObjectKey("user-1", "happy_hour", "wav")
	if other == key {
		t.Errorf("keys must be unique per call")
	}
}

func TestPublicURL(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		bs := &bucketService{bucketName: "bespoken-audio"}
		got := bs.PublicURL("uploads/u/s/x.wav")
		want := "https://storage.googleapis.com/bespoken-audio/uploads/u/s/x.wav"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("cdn", func(t *testing.T) {
		bs := &bucketService{bucketName: "bespoken-audio", cdnDomain: "cdn.bespoken.app/"}
		got := bs.PublicURL("uploads/u/s/x.wav")
		want := "https://cdn.bespoken.app/uploads/u/s/x.wav"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})
}
