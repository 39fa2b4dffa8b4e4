package crawlers

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeElement 测试用元素
type fakeElement struct {
	text  string
	attrs map[string]string
}

func (e fakeElement) Text() (string, error) { return e.text, nil }

func (e fakeElement) Attribute(name string) (string, bool, error) {
	v, ok := e.attrs[name]
	return v, ok, nil
}

// fakeSession 可编排的页面会话
// navigate/wait 按调用次数(从1开始)返回错误, nil函数表示总是成功
type fakeSession struct {
	mu sync.Mutex

	navigate func(call int) error
	wait     func(call int) error
	elements map[string][]fakeElement
	onFind   func(selector string)

	navCalls  int
	waitCalls int
	aborts    int
	closed    bool
	visited   []string
}

func (s *fakeSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.navCalls++
	s.visited = append(s.visited, url)
	if s.navigate != nil {
		return s.navigate(s.navCalls)
	}
	return nil
}

func (s *fakeSession) AbortLoad() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborts++
	return nil
}

func (s *fakeSession) FindOne(selector string) (Element, error) {
	if s.onFind != nil {
		s.onFind(selector)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	els := s.elements[selector]
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return els[0], nil
}

func (s *fakeSession) FindAll(selector string) ([]Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Element, 0, len(s.elements[selector]))
	for _, el := range s.elements[selector] {
		out = append(out, el)
	}
	return out, nil
}

func (s *fakeSession) WaitForPresence(ctx context.Context, selector string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitCalls++
	if s.wait != nil {
		return s.wait(s.waitCalls)
	}
	if len(s.elements[selector]) == 0 {
		return fmt.Errorf("%w: %s", ErrLoadTimeout, selector)
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeFactory 每次返回newSession创建的会话
type fakeFactory struct {
	mu         sync.Mutex
	newSession func() *fakeSession
	sessions   []*fakeSession
	err        error
}

func (f *fakeFactory) NewSession(ctx context.Context) (PageSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := f.newSession()
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeFactory) Close() error { return nil }
