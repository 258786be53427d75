package corio

import "time"

// Config 为调度器运行时配置，应用于单个 Scheduler；peer 数量由
// SpawnPool(n, cfg) 的显式参数 n 决定（对应 spawn(n)），不属于此配置。
type Config struct {
	MaxIOCalls     int           // 单次逻辑操作无进展重试达到该次数后让出一次并重新计数（默认 10）
	PollTimeoutCap time.Duration // poller.Wait 单次等待的上限，避免长时间无法响应 Stop
	TimerPrecision time.Duration // 时间轮的名义精度（仅用于文档化；调度器本身用绝对毫秒）
}

// DefaultConfig 提供一组可工作的默认值。
func DefaultConfig() Config {
	return Config{
		MaxIOCalls:     10,
		PollTimeoutCap: time.Second,
		TimerPrecision: time.Millisecond,
	}
}
