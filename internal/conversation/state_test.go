package conversation

import (
	"errors"
	"sync"
	"testing"
)

func TestReplaceLastAssistantTargetsMostRecent(t *testing.T) {
	s := NewState(Profile{})
	s.Append(RoleUser, "hi")
	s.Append(RoleAssistant, "first")
	s.Append(RoleUser, "again")
	s.Append(RoleAssistant, "second")
	s.Append(RoleUser, "trailing")

	if !s.ReplaceLastAssistant("updated") {
		t.Fatal("expected replacement")
	}

	msgs := s.Messages()
	if msgs[1].Content != "first" {
		t.Fatalf("expected earlier assistant untouched, got %q", msgs[1].Content)
	}
	if msgs[3].Content != "updated" {
		t.Fatalf("expected latest assistant replaced, got %q", msgs[3].Content)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
}

func TestReplaceLastAssistantWithoutAssistant(t *testing.T) {
	s := NewState(Profile{})
	s.Append(RoleUser, "hi")
	if s.ReplaceLastAssistant("x") {
		t.Fatal("expected no replacement without assistant message")
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	s := NewState(Profile{})
	s.Append(RoleUser, "hello")
	msgs := s.Messages()
	msgs[0].Content = "MUTATED"
	if got := s.Messages()[0].Content; got != "hello" {
		t.Fatalf("expected stored message unchanged, got %q", got)
	}
}

func TestChangeTopicResetsHistory(t *testing.T) {
	s := NewState(Profile{})
	s.Append(RoleUser, "hello")
	s.SetPosition(3.5)

	s.ChangeTopic("Travel")

	if s.Len() != 0 {
		t.Fatalf("expected empty history, got %d", s.Len())
	}
	if s.Profile().Topic != "Travel" {
		t.Fatalf("expected topic Travel, got %q", s.Profile().Topic)
	}
	if s.Position() != 0 {
		t.Fatalf("expected position reset, got %v", s.Position())
	}
}

func TestNewStateAppliesDefaults(t *testing.T) {
	s := NewState(Profile{TargetLanguage: "French"})
	p := s.Profile()
	if p.NativeLanguage != DefaultNativeLanguage {
		t.Fatalf("expected default native language, got %q", p.NativeLanguage)
	}
	if p.TargetLanguage != "French" {
		t.Fatalf("expected target French, got %q", p.TargetLanguage)
	}
	if p.Topic != DefaultTopics[0] {
		t.Fatalf("expected default topic, got %q", p.Topic)
	}
}

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{name: "complete", profile: DefaultProfile()},
		{name: "missing native", profile: Profile{TargetLanguage: "English", Topic: "Travel"}, wantErr: true},
		{name: "blank topic", profile: Profile{NativeLanguage: "Spanish", TargetLanguage: "English", Topic: "  "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProfile) {
					t.Fatalf("expected ErrInvalidProfile, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSetPositionClampsNegative(t *testing.T) {
	s := NewState(Profile{})
	s.SetPosition(-2)
	if s.Position() != 0 {
		t.Fatalf("expected clamp to 0, got %v", s.Position())
	}
}

func TestOnChangeFiresOnMutation(t *testing.T) {
	s := NewState(Profile{})
	var mu sync.Mutex
	count := 0
	s.OnChange(func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	s.Append(RoleUser, "a")
	s.Append(RoleAssistant, "b")
	s.ReplaceLastAssistant("c")

	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Fatalf("expected 3 change notifications, got %d", count)
	}
}
