package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"
)

// BrowserOptions 浏览器启动参数
type BrowserOptions struct {
	Bin              string // 浏览器可执行文件, 空表示由launcher自动查找/下载
	Headless         bool
	NoSandbox        bool
	Stealth          bool // 使用 go-rod/stealth 创建页面
	IgnoreCertErrors bool
	UserAgent        string
}

// RodSessionFactory 基于go-rod的页面会话工厂
// 每个工厂持有一个浏览器进程, 每个会话使用独立的隐身上下文和标签页
type RodSessionFactory struct {
	opts    BrowserOptions
	headers http.Header
	logger  zerolog.Logger

	launcher *launcher.Launcher
	browser  *rod.Browser

	closeOnce sync.Once
}

// NewRodSessionFactory 启动并连接浏览器
func NewRodSessionFactory(opts BrowserOptions, headers http.Header, logger zerolog.Logger) (*RodSessionFactory, error) {
	l := launcher.New().Headless(opts.Headless)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	if opts.NoSandbox {
		l = l.NoSandbox(true)
	}
	if opts.IgnoreCertErrors {
		l = l.Set("ignore-certificate-errors")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	logger.Debug().Str("control_url", controlURL).Bool("headless", opts.Headless).Msg("浏览器已启动")

	return &RodSessionFactory{
		opts:     opts,
		headers:  headers,
		logger:   logger,
		launcher: l,
		browser:  browser,
	}, nil
}

// NewSession 创建隐身上下文+标签页
func (f *RodSessionFactory) NewSession(ctx context.Context) (PageSession, error) {
	incognito, err := f.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("创建隐身上下文失败: %w", err)
	}

	var page *rod.Page
	if f.opts.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}

	if f.opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.opts.UserAgent}); err != nil {
			f.logger.Warn().Err(err).Msg("设置User-Agent失败")
		}
	}

	if len(f.headers) > 0 {
		pairs := make([]string, 0, len(f.headers)*2)
		for name, values := range f.headers {
			if len(values) > 0 {
				pairs = append(pairs, name, values[0])
			}
		}
		if _, err := page.SetExtraHeaders(pairs); err != nil {
			f.logger.Warn().Err(err).Msg("设置自定义HTTP头部失败")
		}
	}

	return &rodSession{page: page, incognito: incognito}, nil
}

// Close 关闭浏览器进程
func (f *RodSessionFactory) Close() error {
	var err error
	f.closeOnce.Do(func() {
		err = f.browser.Close()
		f.launcher.Cleanup()
		f.logger.Debug().Msg("浏览器已关闭")
	})
	return err
}

// rodSession 单个标签页会话
type rodSession struct {
	page      *rod.Page
	incognito *rod.Browser

	mu     sync.Mutex
	closed bool
}

func (s *rodSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Navigate 打开页面并等待load事件
func (s *rodSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return mapRodError(err)
	}
	if err := p.WaitLoad(); err != nil {
		return mapRodError(err)
	}
	return nil
}

// AbortLoad 等价于 window.stop()
func (s *rodSession) AbortLoad() error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return proto.PageStopLoading{}.Call(s.page)
}

// FindOne 不等待, 立即查找
func (s *rodSession) FindOne(selector string) (Element, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	el, err := s.page.Sleeper(rod.NotFoundSleeper).Element(selector)
	if err != nil {
		return nil, mapRodError(err)
	}
	return rodElement{el: el}, nil
}

// FindAll 不等待, 立即查找
func (s *rodSession) FindAll(selector string) ([]Element, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	els, err := s.page.Elements(selector)
	if err != nil {
		return nil, mapRodError(err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, rodElement{el: el})
	}
	return out, nil
}

// WaitForPresence 轮询直到选择器出现或超时
func (s *rodSession) WaitForPresence(ctx context.Context, selector string, timeout time.Duration) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	if _, err := p.Element(selector); err != nil {
		return mapRodError(err)
	}
	return nil
}

// Close 关闭标签页和隐身上下文
func (s *rodSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	pageErr := s.page.Close()
	ctxErr := s.incognito.Close()
	return errors.Join(pageErr, ctxErr)
}

// rodElement 包装 *rod.Element
type rodElement struct {
	el *rod.Element
}

func (e rodElement) Text() (string, error) {
	text, err := e.el.Text()
	if err != nil {
		return "", mapRodError(err)
	}
	return text, nil
}

func (e rodElement) Attribute(name string) (string, bool, error) {
	value, err := e.el.Attribute(name)
	if err != nil {
		return "", false, mapRodError(err)
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

// mapRodError 将rod错误映射为会话错误
func mapRodError(err error) error {
	var notFound *rod.ElementNotFoundError
	switch {
	case errors.As(err, &notFound):
		return fmt.Errorf("%w: %v", ErrElementNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrLoadTimeout, err)
	default:
		return err
	}
}
