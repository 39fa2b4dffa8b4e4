package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"
)

// StaticSessionFactory 基于colly的页面会话工厂
// 页面不执行JS, 适用于服务端渲染的列表页和详情页
type StaticSessionFactory struct {
	headers   http.Header
	userAgent string
	logger    zerolog.Logger
}

// NewStaticSessionFactory 创建静态会话工厂
func NewStaticSessionFactory(headers http.Header, userAgent string, logger zerolog.Logger) *StaticSessionFactory {
	return &StaticSessionFactory{
		headers:   headers,
		userAgent: userAgent,
		logger:    logger,
	}
}

// NewSession 每个会话使用独立的collector和cookie jar
func (f *StaticSessionFactory) NewSession(ctx context.Context) (PageSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := []colly.CollectorOption{colly.AllowURLRevisit()}
	if f.userAgent != "" {
		opts = append(opts, colly.UserAgent(f.userAgent))
	}
	c := colly.NewCollector(opts...)

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("创建cookie jar失败: %w", err)
	}
	c.SetCookieJar(jar)

	s := &staticSession{collector: c, logger: f.logger}

	c.OnRequest(func(r *colly.Request) {
		for name, values := range f.headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})

	c.OnResponse(func(r *colly.Response) {
		body := r.Body
		// gzip 已由colly解压
		if encoding := r.Headers.Get("Content-Encoding"); encoding != "" && !strings.EqualFold(encoding, "gzip") {
			decompressed, err := decompressResponse(encoding, r.Body)
			if err != nil {
				s.logger.Warn().Err(err).Str("url", r.Request.URL.String()).Str("encoding", encoding).Msg("解压响应失败,使用原始内容")
			} else {
				body = decompressed
			}
		}
		s.body = body
		s.status = r.StatusCode
	})

	return s, nil
}

// Close 静态工厂没有需要释放的资源
func (f *StaticSessionFactory) Close() error {
	return nil
}

// staticSession colly + goquery 会话
type staticSession struct {
	collector *colly.Collector
	logger    zerolog.Logger

	mu     sync.Mutex
	body   []byte
	status int
	doc    *goquery.Document
	closed bool
}

// Navigate 同步请求页面并解析HTML
func (s *staticSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.body, s.status, s.doc = nil, 0, nil
	s.collector.SetRequestTimeout(timeout)

	if err := s.collector.Visit(url); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrLoadTimeout, err)
		}
		return fmt.Errorf("请求页面失败 [%s]: %w", url, err)
	}
	if s.body == nil {
		return fmt.Errorf("请求页面失败 [%s]: 响应为空", url)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(s.body))
	if err != nil {
		return fmt.Errorf("解析HTML失败 [%s]: %w", url, err)
	}
	s.doc = doc
	return nil
}

// AbortLoad 静态页面在Navigate返回时已完整, 无需中止
func (s *staticSession) AbortLoad() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func (s *staticSession) document() (*goquery.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.doc, nil
}

// FindOne 查找第一个匹配元素
func (s *staticSession) FindOne(selector string) (Element, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s (页面未加载)", ErrElementNotFound, selector)
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return staticElement{sel: sel}, nil
}

// FindAll 查找所有匹配元素
func (s *staticSession) FindAll(selector string) ([]Element, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	var out []Element
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, staticElement{sel: sel})
	})
	return out, nil
}

// WaitForPresence 静态文档不会再变化, 元素不存在即为确定结果
func (s *staticSession) WaitForPresence(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.FindOne(selector)
	return err
}

// Close 释放文档
func (s *staticSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.body, s.doc = nil, nil
	return nil
}

// staticElement 包装 goquery.Selection
type staticElement struct {
	sel *goquery.Selection
}

func (e staticElement) Text() (string, error) {
	return innerText(e.sel), nil
}

func (e staticElement) Attribute(name string) (string, bool, error) {
	value, ok := e.sel.Attr(name)
	return value, ok, nil
}

// blockElements 文本提取时按行分隔的元素
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "footer": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "li": true, "ol": true, "p": true, "section": true,
	"table": true, "tr": true, "ul": true,
}

// innerText 近似浏览器的innerText
// 块级元素之间换行, 行内空白折叠, 空行丢弃
func innerText(s *goquery.Selection) string {
	var lines []string
	var cur strings.Builder

	flush := func() {
		line := strings.Join(strings.Fields(cur.String()), " ")
		if line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			cur.WriteString(n.Data)
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "br":
				flush()
				return
			}
			block := blockElements[n.Data]
			if block {
				flush()
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			if block {
				flush()
			}
		}
	}

	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	flush()
	return strings.Join(lines, "\n")
}

// isTimeout 判断是否为请求超时
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// decompressResponse 解压HTTP响应体
// 显式设置 Accept-Encoding 头部时, Go的Transport不会自动解压
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		return readAll(reader, "gzip")

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return readAll(reader, "deflate")

	case "br":
		return readAll(brotli.NewReader(bytes.NewReader(body)), "brotli")

	case "", "identity":
		return body, nil

	default:
		return nil, fmt.Errorf("未知的Content-Encoding: %s", contentEncoding)
	}
}

func readAll(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s读取失败: %w", name, err)
	}
	return data, nil
}
