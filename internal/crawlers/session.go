package crawlers

import (
	"context"
	"errors"
	"time"
)

// 页面会话错误
// 各实现需把底层驱动的错误映射到这些错误, 调用方用 errors.Is 判断
var (
	ErrLoadTimeout      = errors.New("页面加载超时")
	ErrElementNotFound  = errors.New("元素不存在")
	ErrRetriesExhausted = errors.New("已达最大重试次数")
	ErrSessionClosed    = errors.New("页面会话已关闭")
)

// Element 页面元素
type Element interface {
	// Text 元素的可见文本, 块级子元素之间以换行分隔
	Text() (string, error)
	// Attribute 读取属性, ok为false表示属性不存在
	Attribute(name string) (value string, ok bool, err error)
}

// PageSession 页面会话
// 一个会话只属于一个任务, 并且在任务的每条退出路径上关闭
type PageSession interface {
	// Navigate 打开URL, 超过timeout返回 ErrLoadTimeout
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// AbortLoad 停止当前页面加载, 已渲染的内容保留
	AbortLoad() error
	// FindOne 查找第一个匹配元素, 不存在返回 ErrElementNotFound
	FindOne(selector string) (Element, error)
	// FindAll 查找所有匹配元素, 不存在返回空切片
	FindAll(selector string) ([]Element, error)
	// WaitForPresence 等待选择器出现
	// 超时返回 ErrLoadTimeout; 能确定元素不会出现时返回 ErrElementNotFound
	WaitForPresence(ctx context.Context, selector string, timeout time.Duration) error
	// Close 释放会话资源, 可重复调用
	Close() error
}

// SessionFactory 页面会话工厂
type SessionFactory interface {
	NewSession(ctx context.Context) (PageSession, error)
	Close() error
}
