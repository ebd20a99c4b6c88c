package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/chatmemory-backend/internal/domain"
	domainagg "github.com/yungbote/chatmemory-backend/internal/domain/aggregates"
	"github.com/yungbote/chatmemory-backend/internal/pkg/dbctx"
	"github.com/yungbote/chatmemory-backend/internal/platform/llm"
)

func TestContextMessagesRendering(t *testing.T) {
	c := &Context{
		Summary: "Customer likes blue.",
		History: []*types.Message{
			{Seq: 1, Sender: types.SenderUser, Content: "hi"},
			{Seq: 2, Sender: types.SenderAgent, Content: "hello!"},
			{Seq: 3, Sender: types.SenderUser, Metadata: datatypes.JSON(`{"media_url":"https://m.example/a.jpg"}`)},
			{Seq: 4, Sender: types.SenderAgent, Content: "  "},
		},
	}
	got := c.Messages("You are a stylist.", "anything in navy?")
	want := []llm.Message{
		llm.System("You are a stylist."),
		llm.System("Summary of the earlier conversation with this customer:\nCustomer likes blue."),
		llm.User("hi"),
		llm.Assistant("hello!"),
		llm.User("[shared an image: https://m.example/a.jpg]"),
		llm.User("anything in navy?"),
	}
	if len(got) != len(want) {
		t.Fatalf("messages: want=%d got=%d (%+v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d: want=%+v got=%+v", i, want[i], got[i])
		}
	}
}

func TestContextMessagesWithoutSummary(t *testing.T) {
	c := &Context{}
	got := c.Messages("", "hi")
	if len(got) != 1 || got[0] != llm.User("hi") {
		t.Fatalf("messages: %+v", got)
	}
	if !c.Empty() {
		t.Fatalf("empty context should report Empty")
	}
}

func TestBuildContextCreatesEmptyConversation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u, err := f.svc.Resolve(ctx, ResolveInput{Identifier: types.OpaqueIdentifier("guest-new")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	mc, err := f.svc.BuildContext(ctx, u.ID, types.ChannelWeb)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if !mc.Empty() || mc.UserID != u.ID || mc.Channel != types.ChannelWeb {
		t.Fatalf("BuildContext: unexpected %+v", mc)
	}
}

func TestLookupAndFindContextNeverCreate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	if _, err := f.svc.Lookup(ctx, types.OpaqueIdentifier("ghost")); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("Lookup unknown: want not_found, got %v", err)
	}
	if u, err := f.repos.Users.GetByIdentifier(dbc, types.OpaqueIdentifier("ghost")); err != nil || u != nil {
		t.Fatalf("Lookup created a user: %+v %v", u, err)
	}
	if _, err := f.svc.Lookup(ctx, types.Identifier{}); !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("Lookup blank: want validation, got %v", err)
	}

	conv := f.conversation(t, types.OpaqueIdentifier("guest-known"), types.ChannelWeb)
	f.appendTurns(t, conv.ID, 2, nil)
	u, err := f.svc.Lookup(ctx, types.OpaqueIdentifier(" guest-known "))
	if err != nil || u.ID != conv.UserID {
		t.Fatalf("Lookup known: %+v %v", u, err)
	}
	mc, err := f.svc.FindContext(ctx, u.ID, "WEB")
	if err != nil {
		t.Fatalf("FindContext: %v", err)
	}
	if mc.ConversationID != conv.ID || len(mc.History) != 2 {
		t.Fatalf("FindContext: unexpected %+v", mc)
	}

	if _, err := f.svc.FindContext(ctx, u.ID, types.ChannelWhatsApp); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("FindContext other channel: want not_found, got %v", err)
	}
	convs, err := f.repos.Conversations.ListByUser(dbc, u.ID, 10)
	if err != nil || len(convs) != 1 {
		t.Fatalf("FindContext created a conversation: %d %v", len(convs), err)
	}
}

// Guest 42 repeats a preference over six turn pairs. The fold after the
// twelfth message reads the last five turns and the later context carries the
// summary plus the last ten messages.
func TestGuest42RemembersBlueDresses(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.llm.Respond = func(msgs []llm.Message) (string, error) {
		prompt := msgs[len(msgs)-1].Content
		if !strings.Contains(prompt, "Current Summary: No summary.") {
			return "unexpected prior summary", nil
		}
		if strings.Contains(prompt, "blue dresses") {
			return "Customer guest-42 likes blue dresses.", nil
		}
		return "Customer guest-42 is browsing.", nil
	}

	u, err := f.svc.Resolve(ctx, ResolveInput{Identifier: types.OpaqueIdentifier("guest-42")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	convID := mustContext(t, f, u.ID).ConversationID
	for pair := 1; pair <= 6; pair++ {
		mc := mustContext(t, f, u.ID)
		if mc.Summary != "" {
			t.Fatalf("pair %d: summary before the first fold: %q", pair, mc.Summary)
		}
		if _, err := f.svc.Append(ctx, AppendInput{ConversationID: convID, Sender: types.SenderUser, Content: "I like blue dresses"}); err != nil {
			t.Fatalf("Append user: %v", err)
		}
		if _, err := f.svc.Append(ctx, AppendInput{ConversationID: convID, Sender: types.SenderAgent, Content: "Here are some options."}); err != nil {
			t.Fatalf("Append agent: %v", err)
		}
		fired, err := f.svc.MaybeCompact(ctx, convID)
		if err != nil {
			t.Fatalf("MaybeCompact: %v", err)
		}
		if fired != (pair == 6) {
			t.Fatalf("pair %d: fired=%v", pair, fired)
		}
	}
	if f.llm.CallCount() != 1 {
		t.Fatalf("llm calls: want=1 got=%d", f.llm.CallCount())
	}
	if got := strings.Count(f.llm.LastUserContent(), "I like blue dresses"); got != 2 {
		t.Fatalf("fold window: want 2 user turns of the last five, got %d", got)
	}

	mc := mustContext(t, f, u.ID)
	if !strings.Contains(mc.Summary, "blue dresses") {
		t.Fatalf("summary: got %q", mc.Summary)
	}
	if len(mc.History) != 10 || mc.History[0].Seq != 3 || mc.History[9].Seq != 12 {
		t.Fatalf("history: want seqs 3..12, got %d items", len(mc.History))
	}
	prompt := mc.Messages("You are a stylist.", "what did I want again?")
	if !strings.Contains(prompt[1].Content, "likes blue dresses") {
		t.Fatalf("prompt missing summary block: %+v", prompt[1])
	}

	// Another channel for the same identity starts fresh.
	wa, err := f.svc.BuildContext(ctx, u.ID, types.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("BuildContext whatsapp: %v", err)
	}
	if !wa.Empty() || wa.ConversationID == mc.ConversationID {
		t.Fatalf("whatsapp context should be a fresh conversation")
	}
}

func mustContext(t *testing.T, f *fixture, userID uuid.UUID) *Context {
	t.Helper()
	mc, err := f.svc.BuildContext(context.Background(), userID, types.ChannelWeb)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	return mc
}
