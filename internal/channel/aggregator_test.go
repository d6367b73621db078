package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/flemzord/larkbridge/pkg/message"
)

var testChat = message.Chat{ID: "oc_test", Kind: message.ChatGroup}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAggregator_NonStreamingSegmentsLongReply(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel("lark", nil)
	agg := NewReplyAggregator(testChat, mock, nil, AggregatorConfig{ChunkLimit: 4000}, discardLogger())

	text := strings.Repeat("a", 9000)
	if err := agg.Final(context.Background(), text); err != nil {
		t.Fatalf("Final: %v", err)
	}

	sent := mock.SentMessages()
	if len(sent) != 3 {
		t.Fatalf("got %d sends, want 3", len(sent))
	}
	var rebuilt strings.Builder
	for i, msg := range sent {
		if len(msg.Text) > 4000 {
			t.Errorf("send %d exceeds limit: %d bytes", i, len(msg.Text))
		}
		rebuilt.WriteString(msg.Text)
	}
	if rebuilt.String() != text {
		t.Error("concatenated sends do not reproduce the reply")
	}
}

func TestAggregator_NonStreamingOrderedPartials(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel("lark", nil)
	agg := NewReplyAggregator(testChat, mock, nil, AggregatorConfig{}, discardLogger())

	ctx := context.Background()
	for _, part := range []string{"first", "second"} {
		if err := agg.Partial(ctx, part); err != nil {
			t.Fatalf("Partial(%q): %v", part, err)
		}
	}
	if err := agg.Final(ctx, "third"); err != nil {
		t.Fatalf("Final: %v", err)
	}

	sent := mock.SentMessages()
	want := []string{"first", "second", "third"}
	if len(sent) != len(want) {
		t.Fatalf("got %d sends, want %d", len(sent), len(want))
	}
	for i, w := range want {
		if sent[i].Text != w {
			t.Errorf("send %d = %q, want %q", i, sent[i].Text, w)
		}
	}
}

func TestAggregator_StreamingOneCardThreeEdits(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel("lark", nil)
	agg := NewReplyAggregator(testChat, mock, mock, AggregatorConfig{Streaming: true}, discardLogger())

	ctx := context.Background()
	for _, part := range []string{"A", "B", "C"} {
		if err := agg.Partial(ctx, part); err != nil {
			t.Fatalf("Partial(%q): %v", part, err)
		}
	}
	if err := agg.Final(ctx, ""); err != nil {
		t.Fatalf("Final: %v", err)
	}

	creates, patches := mock.CardOps()
	if creates != 1 {
		t.Errorf("creates = %d, want 1", creates)
	}
	if patches != 3 {
		t.Errorf("patches = %d, want 3", patches)
	}

	card, ok := mock.Card(agg.CardID())
	if !ok {
		t.Fatal("card not found")
	}
	if card.Text != "A\n\n---\n\nB\n\n---\n\nC" {
		t.Errorf("card text = %q", card.Text)
	}
	if !card.Complete {
		t.Error("final patch should mark the card complete")
	}
	if len(mock.SentMessages()) != 0 {
		t.Errorf("streaming turn sent %d text messages, want 0", len(mock.SentMessages()))
	}
}

func TestAggregator_StreamingAdoptsPlaceholderCard(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel("lark", nil)
	agg := NewReplyAggregator(testChat, mock, mock, AggregatorConfig{Streaming: true}, discardLogger())

	ctx := context.Background()
	id, err := mock.SendPlaceholder(ctx, testChat)
	if err != nil {
		t.Fatalf("SendPlaceholder: %v", err)
	}
	agg.AdoptCard(id)

	if err := agg.Partial(ctx, "A"); err != nil {
		t.Fatalf("Partial: %v", err)
	}
	if err := agg.Final(ctx, ""); err != nil {
		t.Fatalf("Final: %v", err)
	}

	creates, _ := mock.CardOps()
	if creates != 1 {
		t.Errorf("creates = %d, want 1 (the placeholder)", creates)
	}
	if agg.CardID() != id {
		t.Errorf("aggregator should keep the placeholder card, got %q", agg.CardID())
	}
}

func TestAggregator_DegradeOnPatchFailure(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel("lark", nil)
	agg := NewReplyAggregator(testChat, mock, mock, AggregatorConfig{Streaming: true}, discardLogger())

	ctx := context.Background()
	if err := agg.Partial(ctx, "A"); err != nil {
		t.Fatalf("Partial(A): %v", err)
	}

	mock.PatchCardErr = errors.New("edit endpoint down")
	if err := agg.Partial(ctx, "B"); err != nil {
		t.Fatalf("Partial(B) should degrade, not fail: %v", err)
	}
	if !agg.Degraded() {
		t.Fatal("aggregator should be degraded after a failed patch")
	}

	// The accumulated card content is flushed as chunked text.
	sent := mock.SentMessages()
	if len(sent) != 1 || sent[0].Text != "A\n\n---\n\nB" {
		t.Fatalf("flush = %v, want one send of accumulated text", sent)
	}

	// Subsequent payloads stay on chunked text even though the card
	// endpoint may have recovered.
	mock.PatchCardErr = nil
	if err := agg.Partial(ctx, "C"); err != nil {
		t.Fatalf("Partial(C): %v", err)
	}
	if err := agg.Final(ctx, ""); err != nil {
		t.Fatalf("Final: %v", err)
	}

	sent = mock.SentMessages()
	if len(sent) != 2 || sent[1].Text != "C" {
		t.Fatalf("degraded sends = %v, want [accumulated, C]", sent)
	}
	if _, patches := mock.CardOps(); patches != 0 {
		t.Errorf("patches = %d, want 0 after degrade", patches)
	}
}

func TestAggregator_FinalOnlyReplyCreatesCompleteCard(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel("lark", nil)
	agg := NewReplyAggregator(testChat, mock, mock, AggregatorConfig{Streaming: true}, discardLogger())

	if err := agg.Final(context.Background(), "whole reply"); err != nil {
		t.Fatalf("Final: %v", err)
	}

	card, ok := mock.Card(agg.CardID())
	if !ok {
		t.Fatal("card not found")
	}
	if card.Text != "whole reply" || !card.Complete {
		t.Errorf("card = %+v, want complete with full text", card)
	}
}

func TestAggregator_PayloadAfterFinal(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel("lark", nil)
	agg := NewReplyAggregator(testChat, mock, nil, AggregatorConfig{}, discardLogger())

	ctx := context.Background()
	if err := agg.Final(ctx, "done"); err != nil {
		t.Fatalf("Final: %v", err)
	}
	if err := agg.Partial(ctx, "late"); !errors.Is(err, ErrTurnDone) {
		t.Errorf("Partial after Final = %v, want ErrTurnDone", err)
	}
	if err := agg.Final(ctx, "again"); !errors.Is(err, ErrTurnDone) {
		t.Errorf("second Final = %v, want ErrTurnDone", err)
	}
}

func TestAggregator_OnFirstContentRunsOnce(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel("lark", nil)

	calls := 0
	cfg := AggregatorConfig{
		OnFirstContent: func(context.Context) { calls++ },
	}
	agg := NewReplyAggregator(testChat, mock, nil, cfg, discardLogger())

	ctx := context.Background()
	if err := agg.Partial(ctx, "one"); err != nil {
		t.Fatalf("Partial: %v", err)
	}
	if err := agg.Final(ctx, "two"); err != nil {
		t.Fatalf("Final: %v", err)
	}

	if calls != 1 {
		t.Errorf("OnFirstContent ran %d times, want 1", calls)
	}
}

func TestAggregator_MediaSentBeforeText(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel("lark", nil)
	agg := NewReplyAggregator(testChat, mock, nil, AggregatorConfig{}, discardLogger())

	ctx := context.Background()
	if err := agg.Media(ctx, "https://example.com/pic.png"); err != nil {
		t.Fatalf("Media: %v", err)
	}
	if err := agg.Final(ctx, "caption"); err != nil {
		t.Fatalf("Final: %v", err)
	}

	sent := mock.SentMessages()
	if len(sent) != 2 {
		t.Fatalf("got %d sends, want 2", len(sent))
	}
	if sent[0].MediaURL == "" || sent[1].Text != "caption" {
		t.Errorf("sends out of order: %v", sent)
	}
}
