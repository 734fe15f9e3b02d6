package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type scriptedModel struct {
	replies []string
	err     error
	calls   int
	inputs  [][]*schema.Message
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.inputs = append(m.inputs, input)
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reply := ""
	if m.calls < len(m.replies) {
		reply = m.replies[m.calls]
	}
	m.calls++
	return schema.AssistantMessage(reply, nil), nil
}

func TestGenerateSendsDocumentConversation(t *testing.T) {
	chat := &scriptedModel{replies: []string{"Idea one"}}
	g := NewGeneratorWithModel(chat, 1, time.Second)

	got, err := g.Generate(context.Background(), "hello", "Generate ideas for user stories.")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(got) != 1 || got[0] != "Idea one" {
		t.Fatalf("unexpected responses %v", got)
	}

	sent := chat.inputs[0]
	want := []struct {
		role    schema.RoleType
		content string
	}{
		{schema.System, systemPrompt},
		{schema.User, documentPrompt},
		{schema.Assistant, "hello"},
		{schema.User, "Generate ideas for user stories."},
	}
	if len(sent) != len(want) {
		t.Fatalf("want %d messages, got %d", len(want), len(sent))
	}
	for i, w := range want {
		if sent[i].Role != w.role || sent[i].Content != w.content {
			t.Fatalf("message %d: want %s %q, got %s %q", i, w.role, w.content, sent[i].Role, sent[i].Content)
		}
	}
}

func TestGenerateCollectsEveryCandidate(t *testing.T) {
	chat := &scriptedModel{replies: []string{"A", "B"}}
	g := NewGeneratorWithModel(chat, 2, 0)

	got, err := g.Generate(context.Background(), "doc", "Create a project plan based on the document's content.")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("unexpected responses %v", got)
	}
}

func TestGenerateDropsBlankCompletions(t *testing.T) {
	chat := &scriptedModel{replies: []string{"", "  "}}
	g := NewGeneratorWithModel(chat, 2, 0)

	got, err := g.Generate(context.Background(), "doc", "What are the main tasks required to complete this project?")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected zero responses, got %#v", got)
	}
}

func TestGenerateWrapsRemoteFailure(t *testing.T) {
	chat := &scriptedModel{err: errors.New("503 service unavailable")}
	g := NewGeneratorWithModel(chat, 1, 0)

	_, err := g.Generate(context.Background(), "doc", "instruction")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
}

func TestGenerateHonoursTimeout(t *testing.T) {
	g := NewGeneratorWithModel(&blockingModel{}, 1, 10*time.Millisecond)

	_, err := g.Generate(context.Background(), "doc", "instruction")
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
}

func TestGenerateRequiresInstruction(t *testing.T) {
	g := NewGeneratorWithModel(&scriptedModel{}, 1, 0)
	if _, err := g.Generate(context.Background(), "doc", " "); !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
}

func TestCandidatesAreClamped(t *testing.T) {
	if g := NewGeneratorWithModel(&scriptedModel{}, 0, 0); g.candidates != 1 {
		t.Fatalf("expected 1 candidate, got %d", g.candidates)
	}
	if g := NewGeneratorWithModel(&scriptedModel{}, 100, 0); g.candidates != maxCandidates {
		t.Fatalf("expected %d candidates, got %d", maxCandidates, g.candidates)
	}
}

type blockingModel struct{}

func (blockingModel) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
