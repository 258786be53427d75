package corio

import "errors"

// 错误分类（taxonomy）。运行时内部只对 would-block 做重试，其余错误
// 一律向上透传，调用方据此决定是否展开（unwind）。
var (
	// ErrSyscall 包裹内核返回的错误，保留原始 errno 分类。
	ErrSyscall = errors.New("corio: syscall failed")
	// ErrTimeout 表示 parked 期间设置的 deadline 先于 I/O 就绪触发。
	ErrTimeout = errors.New("corio: timeout")
	// ErrCancelled 表示调度器关闭或任务被显式取消；调用方必须展开，
	// 不能再发起新的阻塞操作。
	ErrCancelled = errors.New("corio: cancelled")
	// ErrOverflow 表示 readline 累积到 max 字节仍未见到分隔符；
	// iobuf.Buffer 增长触达上限时返回的是 iobuf.ErrOverflow。
	ErrOverflow = errors.New("corio: overflow")
	// ErrMismatch 表示 expect 读到了与期望前缀不同的字节。
	ErrMismatch = errors.New("corio: mismatch")
	// ErrClosed 表示在本地已经 Close 的 socket 上发起了操作。
	ErrClosed = errors.New("corio: closed")
	// ErrEPipe 表示向已关闭的管道/连接写入。
	ErrEPipe = errors.New("corio: broken pipe")

	// ErrInvalidArgument 表示调用参数非法。
	ErrInvalidArgument = errors.New("corio: invalid argument")
	// ErrAlreadyRegistered 表示节点已经注册到 poller。
	ErrAlreadyRegistered = errors.New("corio: already registered")
	// ErrStopped 表示调度器已经停止，不再接受新任务。
	ErrStopped = errors.New("corio: scheduler stopped")
	// ErrRefused 表示 connect 遇到 ECONNREFUSED。
	ErrRefused = errors.New("corio: connection refused")
	// ErrPlatformNotSupported 表示当前平台缺少 epoll/kqueue 支持。
	ErrPlatformNotSupported = errors.New("corio: platform not supported (requires linux or darwin)")
)
