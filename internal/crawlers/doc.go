// Package crawlers 提供页面会话和offer处理流水线
//
// # 概述
//
// crawlers包定义页面会话能力(PageSession)并提供两种实现:
// 基于go-rod的动态会话(执行JS, 每个会话独立的隐身上下文)和基于colly的静态会话。
// 在此之上实现带重试的页面加载、详情页字段提取、单offer处理任务和按批调度。
//
// # 核心组件
//
// ## PageSession / SessionFactory
//
// 会话只属于一个任务, 在任务的每条退出路径上关闭。
// 驱动错误统一映射为 ErrLoadTimeout / ErrElementNotFound / ErrSessionClosed。
//
//	factory, err := NewRodSessionFactory(BrowserOptions{Headless: true}, headers, logger)
//	if err != nil { /* 处理错误 */ }
//	defer factory.Close()
//
//	session, err := factory.NewSession(ctx)
//	defer session.Close()
//
// ## Loader (页面加载)
//
// 导航 + 等待就绪选择器。超时后中止加载, 若选择器已渲染则直接使用页面;
// 否则按 RetryPolicy 指数退避重试, 重试耗尽返回 ErrRetriesExhausted。
// 列表页在元素确定不存在(或出现"无结果"标记)时返回空列表, 不再重试。
//
// ## Extractor (字段提取)
//
// 每个字段独立查找, 缺失时取默认值并记录警告:
//   - 文本字段: 空字符串
//   - year/price: 空值
//   - volume/mileage: 0
//
// ## Worker / Dispatcher
//
// Worker 处理单个offer: 新建会话 -> 加载详情页 -> 提取 -> 写入 -> 关闭会话。
// Dispatcher 将一页的offer按批大小W切分, 每批用 errgroup 并发执行,
// 整批返回后才开始下一批。
//
//	dispatcher := NewDispatcher(worker, 5, logger)
//	result := dispatcher.Dispatch(ctx, "toyota", offers)
//
// ## ResourceMonitor (资源监控器)
//
// 使用gopsutil采样可用内存和CPU负载, 调度器在启动新的分类任务前调用 Admit。
package crawlers
