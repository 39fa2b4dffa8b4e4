package crawlers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/RecoveryAshes/KolesaCrawl/internal/models"
	"github.com/rs/zerolog"
)

// memoryWriter 内存记录写入器
type memoryWriter struct {
	mu      sync.Mutex
	records map[string][]*models.Listing
	err     error
}

func (w *memoryWriter) Append(category string, listing *models.Listing) error {
	if w.err != nil {
		return w.err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.records == nil {
		w.records = make(map[string][]*models.Listing)
	}
	w.records[category] = append(w.records[category], listing)
	return nil
}

func newTestWorker(factory SessionFactory, writer *memoryWriter) *Worker {
	loader, _ := newTestLoader(2)
	extractor := NewExtractor("kolesa", models.DefaultSelectors(), zerolog.Nop())
	return NewWorker(factory, loader, extractor, writer, zerolog.Nop())
}

func detailSession() *fakeSession {
	sel := models.DefaultSelectors()
	return &fakeSession{elements: map[string][]fakeElement{
		testDetailSel: {{text: "ready"}},
		sel.Brand:     {{text: "Toyota"}},
	}}
}

func TestWorker_ProcessOffer(t *testing.T) {
	factory := &fakeFactory{newSession: detailSession}
	writer := &memoryWriter{}

	if err := newTestWorker(factory, writer).ProcessOffer(context.Background(), "https://kolesa.kz/a/show/1", "toyota"); err != nil {
		t.Fatalf("ProcessOffer() error = %v", err)
	}

	if got := len(writer.records["toyota"]); got != 1 {
		t.Fatalf("写入记录数 = %d, want 1", got)
	}
	if writer.records["toyota"][0].Brand != "Toyota" {
		t.Errorf("Brand = %q", writer.records["toyota"][0].Brand)
	}
	if !factory.sessions[0].isClosed() {
		t.Error("处理完成后应关闭会话")
	}
}

func TestWorker_LoadFailureSkipsRecord(t *testing.T) {
	factory := &fakeFactory{newSession: func() *fakeSession {
		return &fakeSession{navigate: func(int) error { return timeoutErr() }}
	}}
	writer := &memoryWriter{}

	err := newTestWorker(factory, writer).ProcessOffer(context.Background(), "https://kolesa.kz/a/show/2", "toyota")
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("ProcessOffer() error = %v, want ErrRetriesExhausted", err)
	}
	if len(writer.records["toyota"]) != 0 {
		t.Error("加载失败时不应写入记录")
	}
	if !factory.sessions[0].isClosed() {
		t.Error("失败路径也应关闭会话")
	}
}

func TestWorker_RecoversPanic(t *testing.T) {
	factory := &fakeFactory{newSession: func() *fakeSession {
		s := detailSession()
		s.onFind = func(string) { panic("extract exploded") }
		return s
	}}
	writer := &memoryWriter{}

	err := newTestWorker(factory, writer).ProcessOffer(context.Background(), "https://kolesa.kz/a/show/3", "toyota")
	if err == nil {
		t.Fatal("panic应转换为错误")
	}
	if !factory.sessions[0].isClosed() {
		t.Error("panic时也应关闭会话")
	}
}

func TestWorker_WriterError(t *testing.T) {
	factory := &fakeFactory{newSession: detailSession}
	writer := &memoryWriter{err: errors.New("disk full")}

	if err := newTestWorker(factory, writer).ProcessOffer(context.Background(), "https://kolesa.kz/a/show/4", "toyota"); err == nil {
		t.Error("写入失败应返回错误")
	}
}

func TestWorker_SessionCreateError(t *testing.T) {
	factory := &fakeFactory{err: errors.New("browser gone")}
	if err := newTestWorker(factory, &memoryWriter{}).ProcessOffer(context.Background(), "https://kolesa.kz/a/show/5", "toyota"); err == nil {
		t.Error("会话创建失败应返回错误")
	}
}
