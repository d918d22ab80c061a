package events

import (
	"context"
	"testing"

	"interview-speech-relay/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"nil brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerInterim != nil {
				t.Error("expected nil interim writer when disabled")
			}
			if p.writerFinal != nil {
				t.Error("expected nil final writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:      false,
		TopicInterim: "test.interim",
		TopicFinal:   "test.final",
		Principal:    "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicInterim != "test.interim" {
		t.Errorf("expected interim topic 'test.interim', got %s", p.topicInterim)
	}
	if p.topicFinal != "test.final" {
		t.Errorf("expected final topic 'test.final', got %s", p.topicFinal)
	}
}

func TestPublisher_Publish_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	u := models.Utterance{ID: "group-1", Transcript: "hello", IsFinal: false}

	if err := p.PublishInterim(context.Background(), "int-1", u); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}

	u.IsFinal = true
	if err := p.PublishFinal(context.Background(), "int-1", u); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_Publish_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// A channel cannot be marshaled.
	event := make(chan int)

	if err := p.PublishInterim(context.Background(), "int-1", event); err == nil {
		t.Error("expected error for unmarshalable interim event")
	}
	if err := p.PublishFinal(context.Background(), "int-1", event); err == nil {
		t.Error("expected error for unmarshalable final event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}
